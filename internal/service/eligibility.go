package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"wildpals/internal/model"
	"wildpals/internal/repository"
)

// refreshEligibility recomputes the club-creation flag from the user's
// post-delta counters and persists it when it changed, within the caller's
// transaction. Every activity mutation that touches rating or a counter goes
// through this so the stored flag never drifts from the weighted score.
func refreshEligibility(ctx context.Context, tx *sqlx.Tx, userRepo repository.UserRepository, user *model.User, threshold float64) error {
	score := model.ClubCreationScore(user.Rating, user.RidesJoined, user.RidesCreated, user.ClubCount, user.CreatedAt, time.Now())
	canCreate := model.CanCreateClub(score, threshold)
	if canCreate == user.CanCreateClub {
		return nil
	}
	return userRepo.SetClubEligibility(ctx, tx, user.ID, canCreate)
}
