package model

import (
	"errors"
	"time"
)

// Route surface types
const (
	RouteTypeRoad     = "road"
	RouteTypeMountain = "mountain"
	RouteTypeGravel   = "gravel"
)

// Canonical difficulty values as stored. The mobile client historically sent
// Beginner/Intermediate/Advanced; NormalizeDifficulty maps those at the
// boundary so only one vocabulary ever reaches the database.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Ride represents a scheduled group outdoor activity with a fixed capacity.
type Ride struct {
	ID                  int64     `db:"id" json:"id"`
	Title               string    `db:"title" json:"title"`
	Description         string    `db:"description" json:"description"`
	StartTime           time.Time `db:"start_time" json:"start_time"`
	EndTime             time.Time `db:"end_time" json:"end_time"`
	Latitude            float64   `db:"latitude" json:"latitude"`
	Longitude           float64   `db:"longitude" json:"longitude"`
	Address             string    `db:"address" json:"address"`
	RouteType           string    `db:"route_type" json:"route_type"`
	DistanceKm          float64   `db:"distance_km" json:"distance_km"`
	ElevationM          float64   `db:"elevation_m" json:"elevation_m"`
	Difficulty          string    `db:"difficulty" json:"difficulty"`
	PaceKmh             float64   `db:"pace_kmh" json:"pace_kmh"`
	MaxParticipants     int       `db:"max_participants" json:"max_participants"`
	CurrentParticipants int       `db:"current_participants" json:"current_participants"`
	IsPrivate           bool      `db:"is_private" json:"is_private"`
	OrganizerID         int64     `db:"organizer_id" json:"organizer_id"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`

	// Joined fields (not in rides table)
	Organizer    *UserSummary  `json:"organizer,omitempty"`
	Participants []UserSummary `json:"participants,omitempty"`
}

// CreateRideRequest is the request body for creating a ride.
type CreateRideRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Address         string    `json:"address"`
	RouteType       string    `json:"route_type"`
	DistanceKm      float64   `json:"distance_km"`
	ElevationM      float64   `json:"elevation_m"`
	Difficulty      string    `json:"difficulty"`
	PaceKmh         float64   `json:"pace_kmh"`
	MaxParticipants int       `json:"max_participants"`
	IsPrivate       bool      `json:"is_private"`
}

// UpdateRideRequest is the request body for updating a ride. Nil fields are
// left unchanged. Capacity can only grow, never shrink below the current
// participant count.
type UpdateRideRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Address         *string    `json:"address"`
	RouteType       *string    `json:"route_type"`
	DistanceKm      *float64   `json:"distance_km"`
	ElevationM      *float64   `json:"elevation_m"`
	Difficulty      *string    `json:"difficulty"`
	PaceKmh         *float64   `json:"pace_kmh"`
	MaxParticipants *int       `json:"max_participants"`
	IsPrivate       *bool      `json:"is_private"`
}

// Ride errors
var (
	ErrRideNotFound       = errors.New("ride not found")
	ErrNotRideOrganizer   = errors.New("not the organizer of this ride")
	ErrRidePrivate        = errors.New("ride is private")
	ErrAlreadyJoined      = errors.New("already joined this ride")
	ErrRideFull           = errors.New("ride is full")
	ErrNotJoined          = errors.New("not a participant of this ride")
	ErrOrganizerLeave     = errors.New("organizer cannot leave their own ride")
	ErrInvalidRouteType   = errors.New("invalid route type")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
	ErrInvalidCapacity    = errors.New("max participants must be at least 1")
	ErrCapacityBelowCount = errors.New("max participants below current participant count")
)

// Error codes carried in capacity/membership failure responses.
const (
	CodeRideFull      = "RIDE_FULL"
	CodeAlreadyJoined = "ALREADY_JOINED"
	CodeNotJoined     = "NOT_JOINED"
)

var validRouteTypes = map[string]struct{}{
	RouteTypeRoad:     {},
	RouteTypeMountain: {},
	RouteTypeGravel:   {},
}

var validDifficulties = map[string]struct{}{
	DifficultyEasy:   {},
	DifficultyMedium: {},
	DifficultyHard:   {},
}

// clientDifficulty maps the UI labels onto the canonical enum.
var clientDifficulty = map[string]string{
	"Beginner":     DifficultyEasy,
	"Intermediate": DifficultyMedium,
	"Advanced":     DifficultyHard,
}

// IsValidRouteType reports whether t is a known route surface.
func IsValidRouteType(t string) bool {
	_, ok := validRouteTypes[t]
	return ok
}

// NormalizeDifficulty maps a client difficulty label to the canonical enum.
// Canonical values pass through unchanged; unknown values return "" and false.
func NormalizeDifficulty(d string) (string, bool) {
	if _, ok := validDifficulties[d]; ok {
		return d, true
	}
	if mapped, ok := clientDifficulty[d]; ok {
		return mapped, true
	}
	return "", false
}
