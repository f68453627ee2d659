package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"wildpals/internal/cache"
	"wildpals/internal/config"
	"wildpals/internal/model"
	"wildpals/internal/queue"
	"wildpals/internal/repository"
)

type RideService struct {
	rideRepo  repository.RideRepository
	userRepo  repository.UserRepository
	feedCache cache.RideFeedCache
	db        *sqlx.DB
	publisher queue.Publisher
	config    *config.Config
}

func NewRideService(
	rideRepo repository.RideRepository,
	userRepo repository.UserRepository,
	feedCache cache.RideFeedCache,
	db *sqlx.DB,
	publisher queue.Publisher,
	cfg *config.Config,
) *RideService {
	return &RideService{
		rideRepo:  rideRepo,
		userRepo:  userRepo,
		feedCache: feedCache,
		db:        db,
		publisher: publisher,
		config:    cfg,
	}
}

// Create validates and persists a new ride. The organizer is enrolled as the
// first participant, their rides_created counter and rating are bumped, and
// club eligibility is recomputed, all in one transaction.
func (s *RideService) Create(ctx context.Context, organizerID int64, req *model.CreateRideRequest) (*model.Ride, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !model.IsValidRouteType(req.RouteType) {
		return nil, model.ErrInvalidRouteType
	}
	difficulty, ok := model.NormalizeDifficulty(req.Difficulty)
	if !ok {
		return nil, model.ErrInvalidDifficulty
	}
	if req.MaxParticipants < 1 {
		return nil, model.ErrInvalidCapacity
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	ride := &model.Ride{
		Title:               strings.TrimSpace(req.Title),
		Description:         req.Description,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		Address:             req.Address,
		RouteType:           req.RouteType,
		DistanceKm:          req.DistanceKm,
		ElevationM:          req.ElevationM,
		Difficulty:          difficulty,
		PaceKmh:             req.PaceKmh,
		MaxParticipants:     req.MaxParticipants,
		CurrentParticipants: 1,
		IsPrivate:           req.IsPrivate,
		OrganizerID:         organizerID,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.rideRepo.Create(ctx, tx, ride); err != nil {
		return nil, err
	}

	if _, err := s.rideRepo.AddParticipant(ctx, tx, ride.ID, organizerID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.ApplyActivityDelta(ctx, tx, organizerID, 0, 1, 0, model.RatingRewardRideCreated)
	if err != nil {
		return nil, err
	}

	if err := s.refreshEligibility(ctx, tx, user); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Publish event for cache maintenance (after commit!)
	if s.publisher != nil {
		event := queue.NewRideCreatedEvent(ride.ID, organizerID, ride.StartTime, ride.IsPrivate)
		if _, err := s.publisher.Publish(ctx, queue.StreamRides, event); err != nil {
			log.Printf("[RideService] Failed to publish RideCreated event: ride=%d err=%v", ride.ID, err)
		}
	}

	return ride, nil
}

// ListUpcoming returns public upcoming rides ordered by start time. The Redis
// sorted set serves the listing when warm; a miss falls back to the database
// and rebuilds the cache.
func (s *RideService) ListUpcoming(ctx context.Context) ([]model.Ride, error) {
	now := time.Now()

	ids, err := s.rideIDsFromCache(ctx, now)
	if err != nil {
		log.Printf("[RideService] cache unavailable, serving from database: %v", err)
		return s.listFromDatabase(ctx)
	}

	if len(ids) == 0 {
		return []model.Ride{}, nil
	}

	rides, err := s.rideRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.enrich(ctx, rides)
	return rides, nil
}

func (s *RideService) rideIDsFromCache(ctx context.Context, now time.Time) ([]int64, error) {
	exists, err := s.feedCache.Exists(ctx)
	if err != nil {
		return nil, err
	}

	if !exists {
		scores, err := s.rideRepo.GetUpcomingPublic(ctx, now, cache.UpcomingRidesCap)
		if err != nil {
			return nil, err
		}
		if err := s.feedCache.Warm(ctx, scores); err != nil {
			return nil, err
		}
	}

	return s.feedCache.GetUpcoming(ctx, now.Unix(), cache.UpcomingRidesCap)
}

func (s *RideService) listFromDatabase(ctx context.Context) ([]model.Ride, error) {
	rides, err := s.rideRepo.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, rides)
	return rides, nil
}

// Get returns a ride by ID. Private rides are visible only to their
// participants.
func (s *RideService) Get(ctx context.Context, rideID int64, viewerID *int64) (*model.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if ride.IsPrivate {
		if viewerID == nil {
			return nil, model.ErrRidePrivate
		}
		if *viewerID != ride.OrganizerID {
			isParticipant, err := s.rideRepo.IsParticipant(ctx, rideID, *viewerID)
			if err != nil {
				return nil, err
			}
			if !isParticipant {
				return nil, model.ErrRidePrivate
			}
		}
	}

	rides := []model.Ride{*ride}
	s.enrich(ctx, rides)
	participants, err := s.rideRepo.GetParticipants(ctx, rideID)
	if err != nil {
		log.Printf("[RideService] Failed to load participants: ride=%d err=%v", rideID, err)
	} else {
		rides[0].Participants = participants
	}

	return &rides[0], nil
}

// Update applies a partial edit. Only the organizer may edit, capacity can
// never drop below the current participant count, and difficulty labels are
// normalized at the boundary.
func (s *RideService) Update(ctx context.Context, rideID, callerID int64, req *model.UpdateRideRequest) (*model.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.OrganizerID != callerID {
		return nil, model.ErrNotRideOrganizer
	}

	if req.RouteType != nil && !model.IsValidRouteType(*req.RouteType) {
		return nil, model.ErrInvalidRouteType
	}
	if req.Difficulty != nil {
		normalized, ok := model.NormalizeDifficulty(*req.Difficulty)
		if !ok {
			return nil, model.ErrInvalidDifficulty
		}
		req.Difficulty = &normalized
	}
	if req.MaxParticipants != nil && *req.MaxParticipants < 1 {
		return nil, model.ErrInvalidCapacity
	}

	updated, err := s.rideRepo.Update(ctx, rideID, req)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := queue.NewRideUpdatedEvent(updated.ID, updated.OrganizerID, updated.StartTime, updated.IsPrivate)
		if _, err := s.publisher.Publish(ctx, queue.StreamRides, event); err != nil {
			log.Printf("[RideService] Failed to publish RideUpdated event: ride=%d err=%v", updated.ID, err)
		}
	}

	return updated, nil
}

// Delete removes a ride and its participant rows. Organizer only.
func (s *RideService) Delete(ctx context.Context, rideID, callerID int64) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.OrganizerID != callerID {
		return model.ErrNotRideOrganizer
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.rideRepo.Delete(ctx, tx, rideID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if s.publisher != nil {
		event := queue.NewRideDeletedEvent(rideID, callerID)
		if _, err := s.publisher.Publish(ctx, queue.StreamRides, event); err != nil {
			log.Printf("[RideService] Failed to publish RideDeleted event: ride=%d err=%v", rideID, err)
		}
	}

	return nil
}

// Join enrolls the caller in a ride. The participant insert and the
// capacity-gated counter update run in one transaction, so the ride can never
// be oversubscribed even under concurrent joins.
func (s *RideService) Join(ctx context.Context, rideID, userID int64) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.OrganizerID == userID {
		return model.ErrAlreadyJoined
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := s.rideRepo.AddParticipant(ctx, tx, rideID, userID)
	if err != nil {
		return err
	}
	if !inserted {
		return model.ErrAlreadyJoined
	}

	ok, err := s.rideRepo.IncrementParticipants(ctx, tx, rideID)
	if err != nil {
		return err
	}
	if !ok {
		// Rollback drops the participant insert too.
		return model.ErrRideFull
	}

	user, err := s.userRepo.ApplyActivityDelta(ctx, tx, userID, 1, 0, 0, model.RatingRewardRideJoined)
	if err != nil {
		return err
	}

	if err := s.refreshEligibility(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if s.publisher != nil {
		event := queue.NewRideJoinedEvent(rideID, userID, ride.OrganizerID)
		if _, err := s.publisher.Publish(ctx, queue.StreamRides, event); err != nil {
			log.Printf("[RideService] Failed to publish RideJoined event: ride=%d user=%d err=%v", rideID, userID, err)
		}
		if ride.IsPrivate {
			notice := queue.NewRideJoinRequestEvent(rideID, userID, ride.OrganizerID)
			if _, err := s.publisher.Publish(ctx, queue.StreamRides, notice); err != nil {
				log.Printf("[RideService] Failed to publish RideJoinRequest event: ride=%d user=%d err=%v", rideID, userID, err)
			}
		}
	}

	return nil
}

// Leave removes the caller from a ride. The organizer cannot leave their own
// ride; they delete it instead.
func (s *RideService) Leave(ctx context.Context, rideID, userID int64) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.OrganizerID == userID {
		return model.ErrOrganizerLeave
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := s.rideRepo.RemoveParticipant(ctx, tx, rideID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return model.ErrNotJoined
	}

	if err := s.rideRepo.DecrementParticipants(ctx, tx, rideID); err != nil {
		return err
	}

	// The rides_joined counter tracks current enrollment; rating rewards are
	// not clawed back on leave.
	user, err := s.userRepo.ApplyActivityDelta(ctx, tx, userID, -1, 0, 0, 0)
	if err != nil {
		return err
	}

	if err := s.refreshEligibility(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *RideService) refreshEligibility(ctx context.Context, tx *sqlx.Tx, user *model.User) error {
	return refreshEligibility(ctx, tx, s.userRepo, user, s.config.ClubCreationThreshold)
}

// enrich attaches organizer summaries and participant lists in two batch
// queries rather than per-ride lookups.
func (s *RideService) enrich(ctx context.Context, rides []model.Ride) {
	if len(rides) == 0 {
		return
	}

	organizerIDs := make([]int64, 0, len(rides))
	rideIDs := make([]int64, 0, len(rides))
	for _, r := range rides {
		organizerIDs = append(organizerIDs, r.OrganizerID)
		rideIDs = append(rideIDs, r.ID)
	}

	summaries, err := s.userRepo.GetSummaries(ctx, organizerIDs)
	if err != nil {
		log.Printf("[RideService] Failed to load organizer summaries: err=%v", err)
	} else {
		for i := range rides {
			if s, ok := summaries[rides[i].OrganizerID]; ok {
				rides[i].Organizer = &s
			}
		}
	}

	participants, err := s.rideRepo.GetParticipantsForRides(ctx, rideIDs)
	if err != nil {
		log.Printf("[RideService] Failed to load participants: err=%v", err)
	} else {
		for i := range rides {
			rides[i].Participants = participants[rides[i].ID]
		}
	}
}
