package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"

	"wildpals/internal/config"
	"wildpals/internal/model"
	"wildpals/internal/queue"
	"wildpals/internal/repository"
)

type ClubService struct {
	clubRepo  repository.ClubRepository
	userRepo  repository.UserRepository
	db        *sqlx.DB
	publisher queue.Publisher
	config    *config.Config
}

func NewClubService(
	clubRepo repository.ClubRepository,
	userRepo repository.UserRepository,
	db *sqlx.DB,
	publisher queue.Publisher,
	cfg *config.Config,
) *ClubService {
	return &ClubService{
		clubRepo:  clubRepo,
		userRepo:  userRepo,
		db:        db,
		publisher: publisher,
		config:    cfg,
	}
}

// Create founds a new club. The caller must have earned the can_create_club
// flag. The club row, the founder membership, the founder's club counter and
// rating reward all commit together.
func (s *ClubService) Create(ctx context.Context, founderID int64, req *model.CreateClubRequest) (*model.Club, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !model.IsValidClubType(req.ClubType) {
		return nil, model.ErrInvalidClubType
	}

	founder, err := s.userRepo.GetByID(ctx, founderID)
	if err != nil {
		return nil, err
	}
	if !founder.CanCreateClub {
		return nil, model.ErrClubCreationForbidden
	}

	exists, err := s.clubRepo.ExistsByName(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, model.ErrClubNameExists
	}

	club := &model.Club{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ClubType:    req.ClubType,
		FounderID:   founderID,
		City:        req.City,
		Province:    req.Province,
		Country:     req.Country,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		MemberCount: 1,
		Rules:       req.Rules,
		Tags:        req.Tags,
		IsPrivate:   req.IsPrivate,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.clubRepo.Create(ctx, tx, club); err != nil {
		return nil, err
	}

	if _, err := s.clubRepo.AddMember(ctx, tx, club.ID, founderID, model.ClubRoleFounder); err != nil {
		return nil, err
	}

	user, err := s.userRepo.ApplyActivityDelta(ctx, tx, founderID, 0, 0, 1, model.RatingRewardClubCreated)
	if err != nil {
		return nil, err
	}

	if err := refreshEligibility(ctx, tx, s.userRepo, user, s.config.ClubCreationThreshold); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return club, nil
}

// List returns clubs visible to the viewer: all public clubs, plus private
// clubs the viewer belongs to.
func (s *ClubService) List(ctx context.Context, viewerID *int64) ([]model.Club, error) {
	return s.clubRepo.ListVisible(ctx, viewerID)
}

// ListForUser returns the clubs the given user is a member of.
func (s *ClubService) ListForUser(ctx context.Context, userID int64) ([]model.Club, error) {
	return s.clubRepo.ListForUser(ctx, userID)
}

// Get returns a club with its member list and founder summary.
func (s *ClubService) Get(ctx context.Context, clubID int64) (*model.Club, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}

	members, err := s.clubRepo.GetMembers(ctx, clubID)
	if err == nil {
		club.Members = members
	}

	summaries, err := s.userRepo.GetSummaries(ctx, []int64{club.FounderID})
	if err == nil {
		if f, ok := summaries[club.FounderID]; ok {
			club.Founder = &f
		}
	}

	return club, nil
}

// Join adds the caller to a public club immediately. For private clubs it
// files a join request for admin review instead.
func (s *ClubService) Join(ctx context.Context, clubID, userID int64, req *model.JoinClubRequest) (*model.JoinClubResult, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.clubRepo.IsMember(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, model.ErrAlreadyMember
	}

	if club.IsPrivate {
		var message *string
		if req != nil {
			message = req.Message
		}
		request, err := s.clubRepo.CreateJoinRequest(ctx, clubID, userID, message)
		if err != nil {
			return nil, err
		}
		return &model.JoinClubResult{Joined: false, Request: request}, nil
	}

	if err := s.addMember(ctx, clubID, userID); err != nil {
		return nil, err
	}

	return &model.JoinClubResult{Joined: true}, nil
}

// ListJoinRequests returns the pending requests for a club. Admin or founder
// only.
func (s *ClubService) ListJoinRequests(ctx context.Context, clubID, callerID int64) ([]model.ClubJoinRequest, error) {
	if err := s.requireAdmin(ctx, clubID, callerID); err != nil {
		return nil, err
	}

	requests, err := s.clubRepo.ListPendingRequests(ctx, clubID)
	if err != nil {
		return nil, err
	}

	if len(requests) > 0 {
		ids := make([]int64, len(requests))
		for i, r := range requests {
			ids[i] = r.UserID
		}
		summaries, err := s.userRepo.GetSummaries(ctx, ids)
		if err == nil {
			for i := range requests {
				if u, ok := summaries[requests[i].UserID]; ok {
					requests[i].Requester = &u
				}
			}
		}
	}

	return requests, nil
}

// ResolveJoinRequest approves or rejects a pending join request. A request
// can only be resolved once; approval adds the member and publishes an event
// so the worker delivers the JOIN_APPROVED message.
func (s *ClubService) ResolveJoinRequest(ctx context.Context, requestID, callerID int64, decision *model.ResolveJoinRequest) (*model.ClubJoinRequest, error) {
	request, err := s.clubRepo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.requireAdmin(ctx, request.ClubID, callerID); err != nil {
		return nil, err
	}

	status := model.JoinRequestRejected
	if decision.Approve {
		status = model.JoinRequestApproved
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	resolved, err := s.clubRepo.ResolveJoinRequest(ctx, tx, requestID, status, decision.Response, callerID)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, model.ErrJoinRequestResolved
	}

	if decision.Approve {
		added, err := s.clubRepo.AddMember(ctx, tx, request.ClubID, request.UserID, model.ClubRoleMember)
		if err != nil {
			return nil, err
		}
		if added {
			if err := s.clubRepo.IncrementMemberCount(ctx, tx, request.ClubID, 1); err != nil {
				return nil, err
			}
			user, err := s.userRepo.ApplyActivityDelta(ctx, tx, request.UserID, 0, 0, 1, model.RatingRewardClubJoined)
			if err != nil {
				return nil, err
			}
			if err := refreshEligibility(ctx, tx, s.userRepo, user, s.config.ClubCreationThreshold); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	if decision.Approve && s.publisher != nil {
		event := queue.NewJoinApprovedEvent(request.ClubID, request.UserID, callerID)
		if _, err := s.publisher.Publish(ctx, queue.StreamRides, event); err != nil {
			log.Printf("[ClubService] Failed to publish JoinApproved event: club=%d user=%d err=%v", request.ClubID, request.UserID, err)
		}
	}

	return s.clubRepo.GetJoinRequest(ctx, requestID)
}

// addMember runs the direct-join transaction for public clubs.
func (s *ClubService) addMember(ctx context.Context, clubID, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	added, err := s.clubRepo.AddMember(ctx, tx, clubID, userID, model.ClubRoleMember)
	if err != nil {
		return err
	}
	if !added {
		return model.ErrAlreadyMember
	}

	if err := s.clubRepo.IncrementMemberCount(ctx, tx, clubID, 1); err != nil {
		return err
	}

	user, err := s.userRepo.ApplyActivityDelta(ctx, tx, userID, 0, 0, 1, model.RatingRewardClubJoined)
	if err != nil {
		return err
	}

	if err := refreshEligibility(ctx, tx, s.userRepo, user, s.config.ClubCreationThreshold); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *ClubService) requireAdmin(ctx context.Context, clubID, userID int64) error {
	role, err := s.clubRepo.GetMemberRole(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if role != model.ClubRoleFounder && role != model.ClubRoleAdmin {
		return model.ErrNotClubAdmin
	}
	return nil
}
