package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"wildpals/internal/cache"
	"wildpals/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	GetSummaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error)
	UpdateProfile(ctx context.Context, id int64, name, bio *string) (*model.User, error)
	SetAvatar(ctx context.Context, id int64, avatarURL, avatarKey string) error

	// ApplyActivityDelta atomically adjusts the denormalized activity counters
	// and rating (capped at model.RatingMax) and returns the updated row so
	// the caller can recompute club eligibility inside the same transaction.
	ApplyActivityDelta(ctx context.Context, tx *sqlx.Tx, userID int64, dJoined, dCreated, dClubs int, dRating float64) (*model.User, error)
	SetClubEligibility(ctx context.Context, tx *sqlx.Tx, userID int64, canCreate bool) error

	SetResetToken(ctx context.Context, userID int64, tokenHash string, expires time.Time) error
	// ResetPasswordByTokenHash sets the new password and clears the token in a
	// single conditional update, so a token can only ever be consumed once.
	ResetPasswordByTokenHash(ctx context.Context, tokenHash, passwordHashed string) (*model.User, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

type RideRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, ride *model.Ride) error
	GetByID(ctx context.Context, id int64) (*model.Ride, error)
	GetByIDs(ctx context.Context, ids []int64) ([]model.Ride, error)
	ListPublic(ctx context.Context) ([]model.Ride, error)
	Update(ctx context.Context, id int64, patch *model.UpdateRideRequest) (*model.Ride, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id int64) error

	AddParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error)
	RemoveParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error)
	// IncrementParticipants bumps the counter only while it is below
	// max_participants; returns false when the ride is already full.
	IncrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) (bool, error)
	DecrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) error

	IsParticipant(ctx context.Context, rideID, userID int64) (bool, error)
	GetParticipants(ctx context.Context, rideID int64) ([]model.UserSummary, error)
	GetParticipantsForRides(ctx context.Context, rideIDs []int64) (map[int64][]model.UserSummary, error)

	// GetUpcomingPublic feeds the Redis cache warm-up.
	GetUpcomingPublic(ctx context.Context, after time.Time, limit int) ([]cache.RideScore, error)
}

type ClubRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, club *model.Club) error
	GetByID(ctx context.Context, id int64) (*model.Club, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	// ListVisible returns public clubs plus, for an authenticated viewer,
	// private clubs they belong to.
	ListVisible(ctx context.Context, viewerID *int64) ([]model.Club, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Club, error)

	AddMember(ctx context.Context, tx *sqlx.Tx, clubID, userID int64, role string) (bool, error)
	IncrementMemberCount(ctx context.Context, tx *sqlx.Tx, clubID int64, delta int) error
	IsMember(ctx context.Context, clubID, userID int64) (bool, error)
	GetMemberRole(ctx context.Context, clubID, userID int64) (string, error)
	GetMembers(ctx context.Context, clubID int64) ([]model.ClubMember, error)

	CreateJoinRequest(ctx context.Context, clubID, userID int64, message *string) (*model.ClubJoinRequest, error)
	GetJoinRequest(ctx context.Context, requestID int64) (*model.ClubJoinRequest, error)
	ListPendingRequests(ctx context.Context, clubID int64) ([]model.ClubJoinRequest, error)
	// ResolveJoinRequest flips a pending request to approved/rejected; returns
	// false if the request was already resolved.
	ResolveJoinRequest(ctx context.Context, tx *sqlx.Tx, requestID int64, status string, response *string, handledBy int64) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	Delete(ctx context.Context, msgID, senderID int64) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]model.Message, error)
	ListForRide(ctx context.Context, rideID int64) ([]model.Message, error)

	// UpsertConversation bumps the thread for msg's sender/receiver pair:
	// creates the row if absent, sets last_message_id, increments the
	// receiver's unread counter. Must run in the same tx as Create.
	UpsertConversation(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	GetConversation(ctx context.Context, userX, userY int64) (*model.Conversation, error)
	MarkConversationRead(ctx context.Context, viewerID, otherUserID int64) error
	GetMessagesByIDs(ctx context.Context, ids []int64) (map[int64]model.Message, error)
}
