package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wildpals/internal/model"
)

const clubColumns = `id, name, description, logo_url, cover_image_url, club_type, founder_id,
	       city, province, country, latitude, longitude,
	       member_count, activity_count, rules, tags, is_private,
	       created_at, updated_at`

type clubRepository struct {
	db *sqlx.DB
}

func NewClubRepository(db *sqlx.DB) ClubRepository {
	return &clubRepository{db: db}
}

func (r *clubRepository) Create(ctx context.Context, tx *sqlx.Tx, club *model.Club) error {
	query := `
		INSERT INTO clubs (name, description, logo_url, cover_image_url, club_type, founder_id,
		                   city, province, country, latitude, longitude,
		                   member_count, rules, tags, is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING id, activity_count, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		club.Name,
		club.Description,
		club.LogoURL,
		club.CoverImageURL,
		club.ClubType,
		club.FounderID,
		club.City,
		club.Province,
		club.Country,
		club.Latitude,
		club.Longitude,
		club.MemberCount,
		pq.Array([]string(club.Rules)),
		pq.Array([]string(club.Tags)),
		club.IsPrivate,
	).Scan(&club.ID, &club.ActivityCount, &club.CreatedAt, &club.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrClubNameExists
		}
		return fmt.Errorf("failed to insert club: %w", err)
	}

	return nil
}

func (r *clubRepository) GetByID(ctx context.Context, id int64) (*model.Club, error) {
	query := `SELECT ` + clubColumns + ` FROM clubs WHERE id = $1`

	var club model.Club
	err := r.db.GetContext(ctx, &club, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrClubNotFound
		}
		return nil, fmt.Errorf("failed to get club by id: %w", err)
	}

	return &club, nil
}

func (r *clubRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM clubs WHERE name = $1)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, name)
	if err != nil {
		return false, fmt.Errorf("failed to check club name: %w", err)
	}
	return exists, nil
}

// ListVisible returns public clubs; an authenticated viewer also sees the
// private clubs they belong to.
func (r *clubRepository) ListVisible(ctx context.Context, viewerID *int64) ([]model.Club, error) {
	var clubs []model.Club
	var err error

	if viewerID == nil {
		query := `SELECT ` + clubColumns + ` FROM clubs WHERE NOT is_private ORDER BY member_count DESC, created_at DESC`
		err = r.db.SelectContext(ctx, &clubs, query)
	} else {
		query := `
			SELECT ` + clubColumns + `
			FROM clubs
			WHERE NOT is_private
			   OR id IN (SELECT club_id FROM club_members WHERE user_id = $1)
			ORDER BY member_count DESC, created_at DESC
		`
		err = r.db.SelectContext(ctx, &clubs, query, *viewerID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list clubs: %w", err)
	}
	return clubs, nil
}

func (r *clubRepository) ListForUser(ctx context.Context, userID int64) ([]model.Club, error) {
	query := `
		SELECT ` + clubColumns + `
		FROM clubs
		WHERE id IN (SELECT club_id FROM club_members WHERE user_id = $1)
		ORDER BY created_at DESC
	`

	var clubs []model.Club
	err := r.db.SelectContext(ctx, &clubs, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user clubs: %w", err)
	}

	return clubs, nil
}

func (r *clubRepository) AddMember(ctx context.Context, tx *sqlx.Tx, clubID, userID int64, role string) (bool, error) {
	query := `
		INSERT INTO club_members (club_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (club_id, user_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, clubID, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to add club member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *clubRepository) IncrementMemberCount(ctx context.Context, tx *sqlx.Tx, clubID int64, delta int) error {
	query := `UPDATE clubs SET member_count = GREATEST(member_count + $1, 0), updated_at = NOW() WHERE id = $2`
	_, err := tx.ExecContext(ctx, query, delta, clubID)
	if err != nil {
		return fmt.Errorf("failed to increment member count: %w", err)
	}
	return nil
}

func (r *clubRepository) IsMember(ctx context.Context, clubID, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM club_members WHERE club_id = $1 AND user_id = $2)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, clubID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *clubRepository) GetMemberRole(ctx context.Context, clubID, userID int64) (string, error) {
	query := `SELECT role FROM club_members WHERE club_id = $1 AND user_id = $2`
	var role string
	err := r.db.GetContext(ctx, &role, query, clubID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}

func (r *clubRepository) GetMembers(ctx context.Context, clubID int64) ([]model.ClubMember, error) {
	query := `
		SELECT u.id, u.name, u.avatar_url, cm.role, cm.joined_at
		FROM club_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.club_id = $1
		ORDER BY cm.joined_at ASC
	`

	var members []model.ClubMember
	err := r.db.SelectContext(ctx, &members, query, clubID)
	if err != nil {
		return nil, fmt.Errorf("failed to get club members: %w", err)
	}

	return members, nil
}

// CreateJoinRequest inserts a pending request. A partial unique index on
// (club_id, user_id) WHERE status = 'pending' keeps one live request per user.
func (r *clubRepository) CreateJoinRequest(ctx context.Context, clubID, userID int64, message *string) (*model.ClubJoinRequest, error) {
	query := `
		INSERT INTO club_join_requests (club_id, user_id, message, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, club_id, user_id, message, status, response, handled_by, created_at, handled_at
	`

	var req model.ClubJoinRequest
	err := r.db.GetContext(ctx, &req, query, clubID, userID, message)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, model.ErrJoinRequestPending
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	return &req, nil
}

func (r *clubRepository) GetJoinRequest(ctx context.Context, requestID int64) (*model.ClubJoinRequest, error) {
	query := `
		SELECT id, club_id, user_id, message, status, response, handled_by, created_at, handled_at
		FROM club_join_requests
		WHERE id = $1
	`

	var req model.ClubJoinRequest
	err := r.db.GetContext(ctx, &req, query, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrJoinRequestNotFound
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}

	return &req, nil
}

func (r *clubRepository) ListPendingRequests(ctx context.Context, clubID int64) ([]model.ClubJoinRequest, error) {
	query := `
		SELECT id, club_id, user_id, message, status, response, handled_by, created_at, handled_at
		FROM club_join_requests
		WHERE club_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`

	var reqs []model.ClubJoinRequest
	err := r.db.SelectContext(ctx, &reqs, query, clubID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	return reqs, nil
}

func (r *clubRepository) ResolveJoinRequest(ctx context.Context, tx *sqlx.Tx, requestID int64, status string, response *string, handledBy int64) (bool, error) {
	query := `
		UPDATE club_join_requests
		SET status = $2, response = $3, handled_by = $4, handled_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := tx.ExecContext(ctx, query, requestID, status, response, handledBy)
	if err != nil {
		return false, fmt.Errorf("failed to resolve join request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}
