package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"wildpals/internal/cache"
	"wildpals/internal/model"
	"wildpals/internal/queue"
)

// MessageCreator delivers system messages (join requests, approvals). It
// abstracts the message service so workers don't depend on it directly.
type MessageCreator interface {
	Send(ctx context.Context, senderID int64, req *model.SendMessageRequest) (*model.Message, error)
}

// NameProvider resolves user and ride display names for message bodies.
type NameProvider interface {
	UserName(ctx context.Context, userID int64) (string, error)
	RideTitle(ctx context.Context, rideID int64) (string, error)
	ClubName(ctx context.Context, clubID int64) (string, error)
}

// Handler processes ride and club events from the queue: it maintains the
// upcoming-rides cache and delivers the JOIN_REQUEST / JOIN_APPROVED system
// messages.
type Handler struct {
	feedCache cache.RideFeedCache
	messages  MessageCreator // Can be nil if messaging not wired
	names     NameProvider
}

// NewHandler creates a new event handler.
func NewHandler(feedCache cache.RideFeedCache, names NameProvider) *Handler {
	return &Handler{
		feedCache: feedCache,
		names:     names,
	}
}

// SetMessageCreator sets the message creator (optional, for system messages).
func (h *Handler) SetMessageCreator(mc MessageCreator) {
	h.messages = mc
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.RideEvent) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventRideCreated:
		err = h.handleRideCreated(ctx, event)
	case queue.EventRideUpdated:
		err = h.handleRideUpdated(ctx, event)
	case queue.EventRideDeleted:
		err = h.handleRideDeleted(ctx, event)
	case queue.EventRideJoined:
		// Membership changes don't affect the cache; the score is start time.
		return nil
	case queue.EventRideJoinRequest:
		err = h.handleRideJoinRequest(ctx, event)
	case queue.EventJoinApproved:
		err = h.handleJoinApproved(ctx, event)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handleRideCreated adds a public ride to the upcoming-rides cache.
func (h *Handler) handleRideCreated(ctx context.Context, event queue.RideEvent) error {
	log.Printf("[Worker] RideCreated: ride=%d organizer=%d private=%v", event.RideID, event.OrganizerID, event.IsPrivate)

	if event.IsPrivate {
		return nil
	}

	if err := h.feedCache.Upsert(ctx, event.RideID, event.StartTime); err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// handleRideUpdated re-scores the cache entry, or evicts a ride that turned
// private.
func (h *Handler) handleRideUpdated(ctx context.Context, event queue.RideEvent) error {
	log.Printf("[Worker] RideUpdated: ride=%d private=%v", event.RideID, event.IsPrivate)

	if event.IsPrivate {
		if err := h.feedCache.Remove(ctx, event.RideID); err != nil {
			return fmt.Errorf("cache remove: %w", err)
		}
		return nil
	}

	if err := h.feedCache.Upsert(ctx, event.RideID, event.StartTime); err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// handleRideDeleted evicts the ride from the cache.
func (h *Handler) handleRideDeleted(ctx context.Context, event queue.RideEvent) error {
	log.Printf("[Worker] RideDeleted: ride=%d", event.RideID)

	if err := h.feedCache.Remove(ctx, event.RideID); err != nil {
		return fmt.Errorf("cache remove: %w", err)
	}
	return nil
}

// handleRideJoinRequest notifies a private ride's organizer that someone
// joined, as a JOIN_REQUEST message in their inbox.
func (h *Handler) handleRideJoinRequest(ctx context.Context, event queue.RideEvent) error {
	log.Printf("[Worker] RideJoinRequest: ride=%d user=%d organizer=%d", event.RideID, event.UserID, event.OrganizerID)

	if h.messages == nil {
		log.Printf("[Worker] RideJoinRequest: message creator not set, skipping")
		return nil
	}

	userName, err := h.names.UserName(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve user name: %w", err)
	}
	rideTitle, err := h.names.RideTitle(ctx, event.RideID)
	if err != nil {
		return fmt.Errorf("resolve ride title: %w", err)
	}

	rideID := event.RideID
	_, err = h.messages.Send(ctx, event.UserID, &model.SendMessageRequest{
		ReceiverID: event.OrganizerID,
		Content:    fmt.Sprintf("%s joined your private ride %q", userName, rideTitle),
		MsgType:    model.MessageTypeJoinRequest,
		RideID:     &rideID,
	})
	if err != nil {
		return fmt.Errorf("send join request message: %w", err)
	}

	return nil
}

// handleJoinApproved tells the new club member their request was approved.
func (h *Handler) handleJoinApproved(ctx context.Context, event queue.RideEvent) error {
	log.Printf("[Worker] JoinApproved: club=%d user=%d handledBy=%d", event.ClubID, event.UserID, event.HandledBy)

	if h.messages == nil {
		log.Printf("[Worker] JoinApproved: message creator not set, skipping")
		return nil
	}

	clubName, err := h.names.ClubName(ctx, event.ClubID)
	if err != nil {
		return fmt.Errorf("resolve club name: %w", err)
	}

	_, err = h.messages.Send(ctx, event.HandledBy, &model.SendMessageRequest{
		ReceiverID: event.UserID,
		Content:    fmt.Sprintf("Your request to join %q has been approved. Welcome!", clubName),
		MsgType:    model.MessageTypeJoinApproved,
	})
	if err != nil {
		return fmt.Errorf("send join approved message: %w", err)
	}

	return nil
}
