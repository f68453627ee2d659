package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the ride stream
const (
	EventRideCreated     = "ride_created"
	EventRideUpdated     = "ride_updated"
	EventRideDeleted     = "ride_deleted"
	EventRideJoined      = "ride_joined"
	EventJoinApproved    = "club_join_approved"
	EventRideJoinRequest = "ride_join_requested"
)

// Stream names
const (
	StreamRides = "stream:rides"
)

// Consumer group name for ride workers
const (
	ConsumerGroupRides = "ride_workers"
)

// RideEvent represents an event published to the ride stream.
// All ride and club events share this structure.
type RideEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	// Ride events
	RideID      int64 `json:"ride_id,omitempty"`
	OrganizerID int64 `json:"organizer_id,omitempty"`
	// Unix seconds of start_time, used as the cache score.
	StartTime int64 `json:"start_time,omitempty"`
	IsPrivate bool  `json:"is_private,omitempty"`

	// Join events
	UserID int64 `json:"user_id,omitempty"`

	// Club events
	ClubID    int64 `json:"club_id,omitempty"`
	HandledBy int64 `json:"handled_by,omitempty"`
}

// NewRideCreatedEvent creates an event for a newly published ride.
// Worker adds public rides to the upcoming-rides cache.
func NewRideCreatedEvent(rideID, organizerID int64, startTime time.Time, isPrivate bool) RideEvent {
	return RideEvent{
		Type:        EventRideCreated,
		Timestamp:   time.Now().Unix(),
		RideID:      rideID,
		OrganizerID: organizerID,
		StartTime:   startTime.Unix(),
		IsPrivate:   isPrivate,
	}
}

// NewRideUpdatedEvent creates an event for an edited ride. Worker re-scores
// the cache entry, or evicts it if the ride turned private.
func NewRideUpdatedEvent(rideID, organizerID int64, startTime time.Time, isPrivate bool) RideEvent {
	return RideEvent{
		Type:        EventRideUpdated,
		Timestamp:   time.Now().Unix(),
		RideID:      rideID,
		OrganizerID: organizerID,
		StartTime:   startTime.Unix(),
		IsPrivate:   isPrivate,
	}
}

// NewRideDeletedEvent creates an event for a removed ride.
// Worker evicts it from the upcoming-rides cache.
func NewRideDeletedEvent(rideID, organizerID int64) RideEvent {
	return RideEvent{
		Type:        EventRideDeleted,
		Timestamp:   time.Now().Unix(),
		RideID:      rideID,
		OrganizerID: organizerID,
	}
}

// NewRideJoinedEvent creates an event for a confirmed join.
func NewRideJoinedEvent(rideID, userID, organizerID int64) RideEvent {
	return RideEvent{
		Type:        EventRideJoined,
		Timestamp:   time.Now().Unix(),
		RideID:      rideID,
		UserID:      userID,
		OrganizerID: organizerID,
	}
}

// NewRideJoinRequestEvent creates an event for a join attempt on a private
// ride. Worker delivers a JOIN_REQUEST message to the organizer.
func NewRideJoinRequestEvent(rideID, userID, organizerID int64) RideEvent {
	return RideEvent{
		Type:        EventRideJoinRequest,
		Timestamp:   time.Now().Unix(),
		RideID:      rideID,
		UserID:      userID,
		OrganizerID: organizerID,
	}
}

// NewJoinApprovedEvent creates an event for an approved club join request.
// Worker delivers a JOIN_APPROVED message to the new member.
func NewJoinApprovedEvent(clubID, userID, handledBy int64) RideEvent {
	return RideEvent{
		Type:      EventJoinApproved,
		Timestamp: time.Now().Unix(),
		ClubID:    clubID,
		UserID:    userID,
		HandledBy: handledBy,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e RideEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseRideEvent parses a RideEvent from Redis stream message values.
func ParseRideEvent(values map[string]interface{}) (RideEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return RideEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event RideEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return RideEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
