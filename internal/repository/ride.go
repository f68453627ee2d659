package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wildpals/internal/cache"
	"wildpals/internal/model"
)

const rideColumns = `id, title, description, start_time, end_time, latitude, longitude, address,
	       route_type, distance_km, elevation_m, difficulty, pace_kmh,
	       max_participants, current_participants, is_private, organizer_id,
	       created_at, updated_at`

type rideRepository struct {
	db *sqlx.DB
}

func NewRideRepository(db *sqlx.DB) RideRepository {
	return &rideRepository{db: db}
}

func (r *rideRepository) Create(ctx context.Context, tx *sqlx.Tx, ride *model.Ride) error {
	query := `
		INSERT INTO rides (title, description, start_time, end_time, latitude, longitude, address,
		                   route_type, distance_km, elevation_m, difficulty, pace_kmh,
		                   max_participants, current_participants, is_private, organizer_id,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		ride.Title,
		ride.Description,
		ride.StartTime,
		ride.EndTime,
		ride.Latitude,
		ride.Longitude,
		ride.Address,
		ride.RouteType,
		ride.DistanceKm,
		ride.ElevationM,
		ride.Difficulty,
		ride.PaceKmh,
		ride.MaxParticipants,
		ride.CurrentParticipants,
		ride.IsPrivate,
		ride.OrganizerID,
	).Scan(&ride.ID, &ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}

	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id int64) (*model.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	var ride model.Ride
	err := r.db.GetContext(ctx, &ride, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrRideNotFound
		}
		return nil, fmt.Errorf("failed to get ride by id: %w", err)
	}

	return &ride, nil
}

// GetByIDs loads rides in bulk, preserving start-time order.
func (r *rideRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Ride, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = ANY($1) ORDER BY start_time ASC`

	var rides []model.Ride
	err := r.db.SelectContext(ctx, &rides, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get rides by ids: %w", err)
	}

	return rides, nil
}

func (r *rideRepository) ListPublic(ctx context.Context) ([]model.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE NOT is_private ORDER BY start_time ASC`

	var rides []model.Ride
	err := r.db.SelectContext(ctx, &rides, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list public rides: %w", err)
	}

	return rides, nil
}

// Update applies non-nil patch fields. Capacity changes are guarded so
// max_participants can never fall below the current participant count.
func (r *rideRepository) Update(ctx context.Context, id int64, patch *model.UpdateRideRequest) (*model.Ride, error) {
	query := `
		UPDATE rides
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    start_time = COALESCE($4, start_time),
		    end_time = COALESCE($5, end_time),
		    latitude = COALESCE($6, latitude),
		    longitude = COALESCE($7, longitude),
		    address = COALESCE($8, address),
		    route_type = COALESCE($9, route_type),
		    distance_km = COALESCE($10, distance_km),
		    elevation_m = COALESCE($11, elevation_m),
		    difficulty = COALESCE($12, difficulty),
		    pace_kmh = COALESCE($13, pace_kmh),
		    max_participants = COALESCE($14, max_participants),
		    is_private = COALESCE($15, is_private),
		    updated_at = NOW()
		WHERE id = $1
		  AND COALESCE($14, max_participants) >= current_participants
		RETURNING ` + rideColumns

	var ride model.Ride
	err := r.db.GetContext(ctx, &ride, query, id,
		patch.Title, patch.Description, patch.StartTime, patch.EndTime,
		patch.Latitude, patch.Longitude, patch.Address,
		patch.RouteType, patch.DistanceKm, patch.ElevationM,
		patch.Difficulty, patch.PaceKmh,
		patch.MaxParticipants, patch.IsPrivate,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the ride is gone or the capacity guard rejected the patch.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, model.ErrCapacityBelowCount
		}
		return nil, fmt.Errorf("failed to update ride: %w", err)
	}

	return &ride, nil
}

func (r *rideRepository) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	// Participant rows go via ON DELETE CASCADE.
	result, err := tx.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ride: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrRideNotFound
	}

	return nil
}

func (r *rideRepository) AddParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error) {
	query := `
		INSERT INTO ride_participants (ride_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (ride_id, user_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, rideID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add participant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *rideRepository) RemoveParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error) {
	query := `DELETE FROM ride_participants WHERE ride_id = $1 AND user_id = $2`
	result, err := tx.ExecContext(ctx, query, rideID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// IncrementParticipants is the capacity gate: the counter only moves while it
// is below max_participants, evaluated server-side in one statement. Two
// concurrent joins against the last slot cannot both pass.
func (r *rideRepository) IncrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) (bool, error) {
	query := `
		UPDATE rides
		SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1 AND current_participants < max_participants
	`
	result, err := tx.ExecContext(ctx, query, rideID)
	if err != nil {
		return false, fmt.Errorf("failed to increment participants: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *rideRepository) DecrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) error {
	query := `
		UPDATE rides
		SET current_participants = GREATEST(current_participants - 1, 0), updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, rideID)
	if err != nil {
		return fmt.Errorf("failed to decrement participants: %w", err)
	}
	return nil
}

func (r *rideRepository) IsParticipant(ctx context.Context, rideID, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM ride_participants WHERE ride_id = $1 AND user_id = $2)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, rideID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

func (r *rideRepository) GetParticipants(ctx context.Context, rideID int64) ([]model.UserSummary, error) {
	query := `
		SELECT u.id, u.name, u.avatar_url
		FROM ride_participants rp
		JOIN users u ON u.id = rp.user_id
		WHERE rp.ride_id = $1
		ORDER BY rp.created_at ASC
	`

	var users []model.UserSummary
	err := r.db.SelectContext(ctx, &users, query, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	return users, nil
}

// GetParticipantsForRides batch-loads participant summaries for a listing in
// one ANY($1) query, avoiding N+1 lookups.
func (r *rideRepository) GetParticipantsForRides(ctx context.Context, rideIDs []int64) (map[int64][]model.UserSummary, error) {
	result := make(map[int64][]model.UserSummary, len(rideIDs))
	if len(rideIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT rp.ride_id, u.id, u.name, u.avatar_url
		FROM ride_participants rp
		JOIN users u ON u.id = rp.user_id
		WHERE rp.ride_id = ANY($1)
		ORDER BY rp.ride_id, rp.created_at ASC
	`

	type participantRow struct {
		RideID int64 `db:"ride_id"`
		model.UserSummary
	}

	var rows []participantRow
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(rideIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to batch-load participants: %w", err)
	}

	for _, row := range rows {
		result[row.RideID] = append(result[row.RideID], row.UserSummary)
	}
	return result, nil
}

func (r *rideRepository) GetUpcomingPublic(ctx context.Context, after time.Time, limit int) ([]cache.RideScore, error) {
	query := `
		SELECT id, start_time
		FROM rides
		WHERE NOT is_private AND start_time >= $1
		ORDER BY start_time ASC
		LIMIT $2
	`

	type rideRow struct {
		ID        int64     `db:"id"`
		StartTime time.Time `db:"start_time"`
	}

	var rows []rideRow
	err := r.db.SelectContext(ctx, &rows, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming public rides: %w", err)
	}

	scores := make([]cache.RideScore, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, cache.RideScore{RideID: row.ID, StartTime: row.StartTime.Unix()})
	}
	return scores, nil
}
