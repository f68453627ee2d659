package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wildpals/internal/model"
)

const userColumns = `id, name, email, password_hashed, avatar_url, avatar_key, bio, rating,
	       rides_joined, rides_created, club_count, can_create_club,
	       reset_token_hash, reset_token_expires, created_at, updated_at`

// userRepository implements UserRepository using sqlx
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (name, email, password_hashed, avatar_url, avatar_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, rating, rides_joined, rides_created, club_count, can_create_club, created_at, updated_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		u.Name,
		u.Email,
		u.PasswordHashed,
		u.AvatarURL,
		u.AvatarKey,
	)

	err := row.Scan(
		&u.ID,
		&u.Rating,
		&u.RidesJoined,
		&u.RidesCreated,
		&u.ClubCount,
		&u.CanCreateClub,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrEmailExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return &u, nil
}

// GetByEmail retrieves a user by their email (stored lowercased)
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = LOWER($1)`

	var u model.User
	err := r.db.GetContext(ctx, &u, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}

// ExistsByEmail checks if an email is already registered
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = LOWER($1))`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	searchQuery := `
		SELECT id, name, avatar_url
		FROM users
		WHERE name ILIKE $1
		ORDER BY rating DESC
		LIMIT $2
	`

	var users []model.UserSummary
	err := r.db.SelectContext(ctx, &users, searchQuery, query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	return users, nil
}

// GetSummaries batch-loads user summaries with a single ANY($1) query.
func (r *userRepository) GetSummaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error) {
	result := make(map[int64]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, name, avatar_url FROM users WHERE id = ANY($1)`

	var summaries []model.UserSummary
	err := r.db.SelectContext(ctx, &summaries, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load user summaries: %w", err)
	}

	for _, s := range summaries {
		result[s.ID] = s
	}
	return result, nil
}

// UpdateProfile applies the non-nil fields and returns the updated row.
func (r *userRepository) UpdateProfile(ctx context.Context, id int64, name, bio *string) (*model.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    bio = COALESCE($3, bio),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id, name, bio)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return &u, nil
}

func (r *userRepository) SetAvatar(ctx context.Context, id int64, avatarURL, avatarKey string) error {
	query := `UPDATE users SET avatar_url = $2, avatar_key = $3, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, avatarURL, avatarKey)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// ApplyActivityDelta adjusts counters and rating in one statement. Rating is
// clamped to [0, RatingMax]; counters never drop below zero.
func (r *userRepository) ApplyActivityDelta(ctx context.Context, tx *sqlx.Tx, userID int64, dJoined, dCreated, dClubs int, dRating float64) (*model.User, error) {
	query := `
		UPDATE users
		SET rides_joined = GREATEST(rides_joined + $2, 0),
		    rides_created = GREATEST(rides_created + $3, 0),
		    club_count = GREATEST(club_count + $4, 0),
		    rating = LEAST(GREATEST(rating + $5, 0), $6),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var u model.User
	err := tx.GetContext(ctx, &u, query, userID, dJoined, dCreated, dClubs, dRating, model.RatingMax)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to apply activity delta: %w", err)
	}

	return &u, nil
}

func (r *userRepository) SetClubEligibility(ctx context.Context, tx *sqlx.Tx, userID int64, canCreate bool) error {
	query := `UPDATE users SET can_create_club = $2 WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, userID, canCreate)
	if err != nil {
		return fmt.Errorf("failed to set club eligibility: %w", err)
	}
	return nil
}

func (r *userRepository) SetResetToken(ctx context.Context, userID int64, tokenHash string, expires time.Time) error {
	query := `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, tokenHash, expires)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return nil
}

// ResetPasswordByTokenHash consumes an unexpired reset token. The password
// update and the token clear happen in one conditional statement, so two
// concurrent attempts with the same token cannot both succeed.
func (r *userRepository) ResetPasswordByTokenHash(ctx context.Context, tokenHash, passwordHashed string) (*model.User, error) {
	query := `
		UPDATE users
		SET password_hashed = $2,
		    reset_token_hash = NULL,
		    reset_token_expires = NULL,
		    updated_at = NOW()
		WHERE reset_token_hash = $1 AND reset_token_expires > NOW()
		RETURNING ` + userColumns

	var u model.User
	err := r.db.GetContext(ctx, &u, query, tokenHash, passwordHashed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("failed to reset password: %w", err)
	}

	return &u, nil
}
