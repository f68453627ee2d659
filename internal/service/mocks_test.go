package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"wildpals/internal/cache"
	"wildpals/internal/config"
	"wildpals/internal/model"
	"wildpals/internal/queue"
)

// =============================================================================
// Shared test fixtures
// =============================================================================
//
// Services depend on repository interfaces, so each test swaps in a mock with
// function fields and defines only the behavior it cares about. Transactions
// go through a sqlmock-backed *sqlx.DB: the repos here never touch the tx, so
// tests only assert begin/commit/rollback ordering.

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                "test-secret",
		AccessTokenMaxAge:        3600,
		RefreshTokenMaxAge:       604800,
		PasswordResetBaseURL:     "http://localhost:3000/reset-password",
		PasswordResetExpiryHours: 24,
		ClubCreationThreshold:    model.DefaultClubCreationThreshold,
	}
}

// =============================================================================
// Repository mocks
// =============================================================================

type mockUserRepository struct {
	createFn             func(ctx context.Context, user *model.User) error
	getByIDFn            func(ctx context.Context, id int64) (*model.User, error)
	getByEmailFn         func(ctx context.Context, email string) (*model.User, error)
	existsByEmailFn      func(ctx context.Context, email string) (bool, error)
	searchFn             func(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	getSummariesFn       func(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error)
	updateProfileFn      func(ctx context.Context, id int64, name, bio *string) (*model.User, error)
	setAvatarFn          func(ctx context.Context, id int64, avatarURL, avatarKey string) error
	applyActivityDeltaFn func(ctx context.Context, tx *sqlx.Tx, userID int64, dJoined, dCreated, dClubs int, dRating float64) (*model.User, error)
	setClubEligibilityFn func(ctx context.Context, tx *sqlx.Tx, userID int64, canCreate bool) error
	setResetTokenFn      func(ctx context.Context, userID int64, tokenHash string, expires time.Time) error
	resetPasswordFn      func(ctx context.Context, tokenHash, passwordHashed string) (*model.User, error)

	createCalls        int
	activityDeltaCalls int
	eligibilityCalls   int
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFn != nil {
		return m.existsByEmailFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockUserRepository) GetSummaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error) {
	if m.getSummariesFn != nil {
		return m.getSummariesFn(ctx, ids)
	}
	return map[int64]model.UserSummary{}, nil
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, id int64, name, bio *string) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, id, name, bio)
	}
	return nil, model.ErrUserNotFound
}

func (m *mockUserRepository) SetAvatar(ctx context.Context, id int64, avatarURL, avatarKey string) error {
	if m.setAvatarFn != nil {
		return m.setAvatarFn(ctx, id, avatarURL, avatarKey)
	}
	return nil
}

func (m *mockUserRepository) ApplyActivityDelta(ctx context.Context, tx *sqlx.Tx, userID int64, dJoined, dCreated, dClubs int, dRating float64) (*model.User, error) {
	m.activityDeltaCalls++
	if m.applyActivityDeltaFn != nil {
		return m.applyActivityDeltaFn(ctx, tx, userID, dJoined, dCreated, dClubs, dRating)
	}
	return &model.User{ID: userID, CreatedAt: time.Now()}, nil
}

func (m *mockUserRepository) SetClubEligibility(ctx context.Context, tx *sqlx.Tx, userID int64, canCreate bool) error {
	m.eligibilityCalls++
	if m.setClubEligibilityFn != nil {
		return m.setClubEligibilityFn(ctx, tx, userID, canCreate)
	}
	return nil
}

func (m *mockUserRepository) SetResetToken(ctx context.Context, userID int64, tokenHash string, expires time.Time) error {
	if m.setResetTokenFn != nil {
		return m.setResetTokenFn(ctx, userID, tokenHash, expires)
	}
	return nil
}

func (m *mockUserRepository) ResetPasswordByTokenHash(ctx context.Context, tokenHash, passwordHashed string) (*model.User, error) {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, tokenHash, passwordHashed)
	}
	return nil, model.ErrResetTokenInvalid
}

type mockRefreshTokenRepository struct {
	createFn          func(ctx context.Context, token *model.RefreshToken) error
	findByTokenHashFn func(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	revokeFn          func(ctx context.Context, id string, replacedBy *string) error
	revokeAllFn       func(ctx context.Context, userID int64) error
	deleteExpiredFn   func(ctx context.Context, olderThan time.Duration) (int64, error)

	revokeAllCalls []int64
	revokeCalls    []string
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	if m.createFn != nil {
		return m.createFn(ctx, token)
	}
	return nil
}

func (m *mockRefreshTokenRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	if m.findByTokenHashFn != nil {
		return m.findByTokenHashFn(ctx, tokenHash)
	}
	return nil, model.ErrRefreshTokenNotFound
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, id string, replacedBy *string) error {
	m.revokeCalls = append(m.revokeCalls, id)
	if m.revokeFn != nil {
		return m.revokeFn(ctx, id, replacedBy)
	}
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) error {
	m.revokeAllCalls = append(m.revokeAllCalls, userID)
	if m.revokeAllFn != nil {
		return m.revokeAllFn(ctx, userID)
	}
	return nil
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, olderThan)
	}
	return 0, nil
}

type mockRideRepository struct {
	createFn                func(ctx context.Context, tx *sqlx.Tx, ride *model.Ride) error
	getByIDFn               func(ctx context.Context, id int64) (*model.Ride, error)
	getByIDsFn              func(ctx context.Context, ids []int64) ([]model.Ride, error)
	listPublicFn            func(ctx context.Context) ([]model.Ride, error)
	updateFn                func(ctx context.Context, id int64, patch *model.UpdateRideRequest) (*model.Ride, error)
	deleteFn                func(ctx context.Context, tx *sqlx.Tx, id int64) error
	addParticipantFn        func(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error)
	removeParticipantFn     func(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error)
	incrementParticipantsFn func(ctx context.Context, tx *sqlx.Tx, rideID int64) (bool, error)
	decrementParticipantsFn func(ctx context.Context, tx *sqlx.Tx, rideID int64) error
	isParticipantFn         func(ctx context.Context, rideID, userID int64) (bool, error)
	getParticipantsFn       func(ctx context.Context, rideID int64) ([]model.UserSummary, error)
	getParticipantsForRides func(ctx context.Context, rideIDs []int64) (map[int64][]model.UserSummary, error)
	getUpcomingPublicFn     func(ctx context.Context, after time.Time, limit int) ([]cache.RideScore, error)
}

func (m *mockRideRepository) Create(ctx context.Context, tx *sqlx.Tx, ride *model.Ride) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, ride)
	}
	ride.ID = 1
	return nil
}

func (m *mockRideRepository) GetByID(ctx context.Context, id int64) (*model.Ride, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrRideNotFound
}

func (m *mockRideRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Ride, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockRideRepository) ListPublic(ctx context.Context) ([]model.Ride, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx)
	}
	return nil, nil
}

func (m *mockRideRepository) Update(ctx context.Context, id int64, patch *model.UpdateRideRequest) (*model.Ride, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil, model.ErrRideNotFound
}

func (m *mockRideRepository) Delete(ctx context.Context, tx *sqlx.Tx, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tx, id)
	}
	return nil
}

func (m *mockRideRepository) AddParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error) {
	if m.addParticipantFn != nil {
		return m.addParticipantFn(ctx, tx, rideID, userID)
	}
	return true, nil
}

func (m *mockRideRepository) RemoveParticipant(ctx context.Context, tx *sqlx.Tx, rideID, userID int64) (bool, error) {
	if m.removeParticipantFn != nil {
		return m.removeParticipantFn(ctx, tx, rideID, userID)
	}
	return true, nil
}

func (m *mockRideRepository) IncrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) (bool, error) {
	if m.incrementParticipantsFn != nil {
		return m.incrementParticipantsFn(ctx, tx, rideID)
	}
	return true, nil
}

func (m *mockRideRepository) DecrementParticipants(ctx context.Context, tx *sqlx.Tx, rideID int64) error {
	if m.decrementParticipantsFn != nil {
		return m.decrementParticipantsFn(ctx, tx, rideID)
	}
	return nil
}

func (m *mockRideRepository) IsParticipant(ctx context.Context, rideID, userID int64) (bool, error) {
	if m.isParticipantFn != nil {
		return m.isParticipantFn(ctx, rideID, userID)
	}
	return false, nil
}

func (m *mockRideRepository) GetParticipants(ctx context.Context, rideID int64) ([]model.UserSummary, error) {
	if m.getParticipantsFn != nil {
		return m.getParticipantsFn(ctx, rideID)
	}
	return nil, nil
}

func (m *mockRideRepository) GetParticipantsForRides(ctx context.Context, rideIDs []int64) (map[int64][]model.UserSummary, error) {
	if m.getParticipantsForRides != nil {
		return m.getParticipantsForRides(ctx, rideIDs)
	}
	return map[int64][]model.UserSummary{}, nil
}

func (m *mockRideRepository) GetUpcomingPublic(ctx context.Context, after time.Time, limit int) ([]cache.RideScore, error) {
	if m.getUpcomingPublicFn != nil {
		return m.getUpcomingPublicFn(ctx, after, limit)
	}
	return nil, nil
}

type mockClubRepository struct {
	createFn              func(ctx context.Context, tx *sqlx.Tx, club *model.Club) error
	getByIDFn             func(ctx context.Context, id int64) (*model.Club, error)
	existsByNameFn        func(ctx context.Context, name string) (bool, error)
	listVisibleFn         func(ctx context.Context, viewerID *int64) ([]model.Club, error)
	listForUserFn         func(ctx context.Context, userID int64) ([]model.Club, error)
	addMemberFn           func(ctx context.Context, tx *sqlx.Tx, clubID, userID int64, role string) (bool, error)
	incrementMemberFn     func(ctx context.Context, tx *sqlx.Tx, clubID int64, delta int) error
	isMemberFn            func(ctx context.Context, clubID, userID int64) (bool, error)
	getMemberRoleFn       func(ctx context.Context, clubID, userID int64) (string, error)
	getMembersFn          func(ctx context.Context, clubID int64) ([]model.ClubMember, error)
	createJoinRequestFn   func(ctx context.Context, clubID, userID int64, message *string) (*model.ClubJoinRequest, error)
	getJoinRequestFn      func(ctx context.Context, requestID int64) (*model.ClubJoinRequest, error)
	listPendingRequestsFn func(ctx context.Context, clubID int64) ([]model.ClubJoinRequest, error)
	resolveJoinRequestFn  func(ctx context.Context, tx *sqlx.Tx, requestID int64, status string, response *string, handledBy int64) (bool, error)

	addMemberCalls int
}

func (m *mockClubRepository) Create(ctx context.Context, tx *sqlx.Tx, club *model.Club) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, club)
	}
	club.ID = 1
	return nil
}

func (m *mockClubRepository) GetByID(ctx context.Context, id int64) (*model.Club, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrClubNotFound
}

func (m *mockClubRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	if m.existsByNameFn != nil {
		return m.existsByNameFn(ctx, name)
	}
	return false, nil
}

func (m *mockClubRepository) ListVisible(ctx context.Context, viewerID *int64) ([]model.Club, error) {
	if m.listVisibleFn != nil {
		return m.listVisibleFn(ctx, viewerID)
	}
	return nil, nil
}

func (m *mockClubRepository) ListForUser(ctx context.Context, userID int64) ([]model.Club, error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockClubRepository) AddMember(ctx context.Context, tx *sqlx.Tx, clubID, userID int64, role string) (bool, error) {
	m.addMemberCalls++
	if m.addMemberFn != nil {
		return m.addMemberFn(ctx, tx, clubID, userID, role)
	}
	return true, nil
}

func (m *mockClubRepository) IncrementMemberCount(ctx context.Context, tx *sqlx.Tx, clubID int64, delta int) error {
	if m.incrementMemberFn != nil {
		return m.incrementMemberFn(ctx, tx, clubID, delta)
	}
	return nil
}

func (m *mockClubRepository) IsMember(ctx context.Context, clubID, userID int64) (bool, error) {
	if m.isMemberFn != nil {
		return m.isMemberFn(ctx, clubID, userID)
	}
	return false, nil
}

func (m *mockClubRepository) GetMemberRole(ctx context.Context, clubID, userID int64) (string, error) {
	if m.getMemberRoleFn != nil {
		return m.getMemberRoleFn(ctx, clubID, userID)
	}
	return "", nil
}

func (m *mockClubRepository) GetMembers(ctx context.Context, clubID int64) ([]model.ClubMember, error) {
	if m.getMembersFn != nil {
		return m.getMembersFn(ctx, clubID)
	}
	return nil, nil
}

func (m *mockClubRepository) CreateJoinRequest(ctx context.Context, clubID, userID int64, message *string) (*model.ClubJoinRequest, error) {
	if m.createJoinRequestFn != nil {
		return m.createJoinRequestFn(ctx, clubID, userID, message)
	}
	return &model.ClubJoinRequest{ID: 1, ClubID: clubID, UserID: userID, Message: message, Status: model.JoinRequestPending}, nil
}

func (m *mockClubRepository) GetJoinRequest(ctx context.Context, requestID int64) (*model.ClubJoinRequest, error) {
	if m.getJoinRequestFn != nil {
		return m.getJoinRequestFn(ctx, requestID)
	}
	return nil, model.ErrJoinRequestNotFound
}

func (m *mockClubRepository) ListPendingRequests(ctx context.Context, clubID int64) ([]model.ClubJoinRequest, error) {
	if m.listPendingRequestsFn != nil {
		return m.listPendingRequestsFn(ctx, clubID)
	}
	return nil, nil
}

func (m *mockClubRepository) ResolveJoinRequest(ctx context.Context, tx *sqlx.Tx, requestID int64, status string, response *string, handledBy int64) (bool, error) {
	if m.resolveJoinRequestFn != nil {
		return m.resolveJoinRequestFn(ctx, tx, requestID, status, response, handledBy)
	}
	return true, nil
}

type mockMessageRepository struct {
	createFn               func(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	getByIDFn              func(ctx context.Context, id int64) (*model.Message, error)
	deleteFn               func(ctx context.Context, msgID, senderID int64) error
	listForUserFn          func(ctx context.Context, userID int64, limit int) ([]model.Message, error)
	listForRideFn          func(ctx context.Context, rideID int64) ([]model.Message, error)
	upsertConversationFn   func(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error
	listConversationsFn    func(ctx context.Context, userID int64) ([]model.Conversation, error)
	getConversationFn      func(ctx context.Context, userX, userY int64) (*model.Conversation, error)
	markConversationReadFn func(ctx context.Context, viewerID, otherUserID int64) error
	getMessagesByIDsFn     func(ctx context.Context, ids []int64) (map[int64]model.Message, error)

	upsertCalls int
}

func (m *mockMessageRepository) Create(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	if m.createFn != nil {
		return m.createFn(ctx, tx, msg)
	}
	msg.ID = 1
	msg.CreatedAt = time.Now()
	return nil
}

func (m *mockMessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrMessageNotFound
}

func (m *mockMessageRepository) Delete(ctx context.Context, msgID, senderID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, msgID, senderID)
	}
	return nil
}

func (m *mockMessageRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]model.Message, error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockMessageRepository) ListForRide(ctx context.Context, rideID int64) ([]model.Message, error) {
	if m.listForRideFn != nil {
		return m.listForRideFn(ctx, rideID)
	}
	return nil, nil
}

func (m *mockMessageRepository) UpsertConversation(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	m.upsertCalls++
	if m.upsertConversationFn != nil {
		return m.upsertConversationFn(ctx, tx, msg)
	}
	return nil
}

func (m *mockMessageRepository) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	if m.listConversationsFn != nil {
		return m.listConversationsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockMessageRepository) GetConversation(ctx context.Context, userX, userY int64) (*model.Conversation, error) {
	if m.getConversationFn != nil {
		return m.getConversationFn(ctx, userX, userY)
	}
	return nil, nil
}

func (m *mockMessageRepository) MarkConversationRead(ctx context.Context, viewerID, otherUserID int64) error {
	if m.markConversationReadFn != nil {
		return m.markConversationReadFn(ctx, viewerID, otherUserID)
	}
	return nil
}

func (m *mockMessageRepository) GetMessagesByIDs(ctx context.Context, ids []int64) (map[int64]model.Message, error) {
	if m.getMessagesByIDsFn != nil {
		return m.getMessagesByIDsFn(ctx, ids)
	}
	return map[int64]model.Message{}, nil
}

// =============================================================================
// Feed cache stubs
// =============================================================================

// failingFeedCache simulates a Redis outage.
type failingFeedCache struct{}

func (failingFeedCache) Upsert(ctx context.Context, rideID, startTime int64) error {
	return errors.New("redis down")
}
func (failingFeedCache) Remove(ctx context.Context, rideID int64) error {
	return errors.New("redis down")
}
func (failingFeedCache) GetUpcoming(ctx context.Context, from int64, limit int) ([]int64, error) {
	return nil, errors.New("redis down")
}
func (failingFeedCache) Warm(ctx context.Context, rides []cache.RideScore) error {
	return errors.New("redis down")
}
func (failingFeedCache) Exists(ctx context.Context) (bool, error) {
	return false, errors.New("redis down")
}

// memoryFeedCache is an in-process RideFeedCache for warm-path tests.
type memoryFeedCache struct {
	scores    map[int64]int64
	warmCalls int
}

func newMemoryFeedCache() *memoryFeedCache {
	return &memoryFeedCache{scores: make(map[int64]int64)}
}

func (c *memoryFeedCache) Upsert(ctx context.Context, rideID, startTime int64) error {
	c.scores[rideID] = startTime
	return nil
}

func (c *memoryFeedCache) Remove(ctx context.Context, rideID int64) error {
	delete(c.scores, rideID)
	return nil
}

func (c *memoryFeedCache) GetUpcoming(ctx context.Context, from int64, limit int) ([]int64, error) {
	ids := make([]int64, 0, len(c.scores))
	for id, score := range c.scores {
		if score >= from {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return c.scores[ids[i]] < c.scores[ids[j]] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (c *memoryFeedCache) Warm(ctx context.Context, rides []cache.RideScore) error {
	c.warmCalls++
	for _, r := range rides {
		c.scores[r.RideID] = r.StartTime
	}
	return nil
}

func (c *memoryFeedCache) Exists(ctx context.Context) (bool, error) {
	return len(c.scores) > 0, nil
}

// =============================================================================
// Publisher and email mocks
// =============================================================================

type mockPublisher struct {
	events []queue.RideEvent
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.RideEvent) (string, error) {
	m.events = append(m.events, event)
	return "0-0", nil
}

type mockEmailSender struct {
	resetEmails   []string
	changedEmails []string
	resetURLs     []string
	sendErr       error
}

func (m *mockEmailSender) SendPasswordReset(toEmail, toName, resetURL string) error {
	m.resetEmails = append(m.resetEmails, toEmail)
	m.resetURLs = append(m.resetURLs, resetURL)
	return m.sendErr
}

func (m *mockEmailSender) SendPasswordChanged(toEmail, toName string) error {
	m.changedEmails = append(m.changedEmails, toEmail)
	return m.sendErr
}
