package model

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

// Club activity categories
const (
	ClubTypeBiking   = "biking"
	ClubTypeClimbing = "climbing"
	ClubTypeHiking   = "hiking"
	ClubTypeSkiing   = "skiing"
	ClubTypeSurfing  = "surfing"
	ClubTypeRunning  = "running"
	ClubTypeCamping  = "camping"
)

// Membership roles. The founder is always a member and an admin.
const (
	ClubRoleFounder = "founder"
	ClubRoleAdmin   = "admin"
	ClubRoleMember  = "member"
)

// Join request states
const (
	JoinRequestPending  = "pending"
	JoinRequestApproved = "approved"
	JoinRequestRejected = "rejected"
)

// Club represents a persistent group with membership and founder/admin roles.
type Club struct {
	ID            int64          `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Description   string         `db:"description" json:"description"`
	LogoURL       *string        `db:"logo_url" json:"logo_url"`
	CoverImageURL *string        `db:"cover_image_url" json:"cover_image_url"`
	ClubType      string         `db:"club_type" json:"club_type"`
	FounderID     int64          `db:"founder_id" json:"founder_id"`
	City          string         `db:"city" json:"city"`
	Province      string         `db:"province" json:"province"`
	Country       string         `db:"country" json:"country"`
	Latitude      *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64       `db:"longitude" json:"longitude,omitempty"`
	MemberCount   int            `db:"member_count" json:"member_count"`
	ActivityCount int            `db:"activity_count" json:"activity_count"`
	Rules         pq.StringArray `db:"rules" json:"rules"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	IsPrivate     bool           `db:"is_private" json:"is_private"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`

	// Joined fields (not in clubs table)
	Founder *UserSummary `json:"founder,omitempty"`
	Members []ClubMember `json:"members,omitempty"`
}

// ClubMember is a membership row joined with its user summary.
type ClubMember struct {
	UserSummary
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// ClubJoinRequest records a pending or resolved application to a private club.
type ClubJoinRequest struct {
	ID        int64      `db:"id" json:"id"`
	ClubID    int64      `db:"club_id" json:"club_id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Message   *string    `db:"message" json:"message,omitempty"`
	Status    string     `db:"status" json:"status"`
	Response  *string    `db:"response" json:"response,omitempty"`
	HandledBy *int64     `db:"handled_by" json:"handled_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	HandledAt *time.Time `db:"handled_at" json:"handled_at,omitempty"`

	Requester *UserSummary `json:"requester,omitempty"`
}

// CreateClubRequest is the request body for creating a club.
type CreateClubRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ClubType    string   `json:"club_type"`
	City        string   `json:"city"`
	Province    string   `json:"province"`
	Country     string   `json:"country"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Rules       []string `json:"rules"`
	Tags        []string `json:"tags"`
	IsPrivate   bool     `json:"is_private"`
}

// JoinClubRequest carries the optional application message for private clubs.
type JoinClubRequest struct {
	Message *string `json:"message"`
}

// ResolveJoinRequest is the admin decision on a pending join request.
type ResolveJoinRequest struct {
	Approve  bool    `json:"approve"`
	Response *string `json:"response"`
}

// JoinClubResult tells the caller whether they became a member immediately or
// their request is awaiting admin review.
type JoinClubResult struct {
	Joined  bool             `json:"joined"`
	Request *ClubJoinRequest `json:"request,omitempty"`
}

// Club errors
var (
	ErrClubNotFound          = errors.New("club not found")
	ErrClubNameExists        = errors.New("club name already taken")
	ErrAlreadyMember         = errors.New("already a member of this club")
	ErrNotClubAdmin          = errors.New("not an admin of this club")
	ErrClubCreationForbidden = errors.New("club creation requirements not met")
	ErrInvalidClubType       = errors.New("invalid club type")
	ErrJoinRequestNotFound   = errors.New("join request not found")
	ErrJoinRequestPending    = errors.New("join request already pending")
	ErrJoinRequestResolved   = errors.New("join request already resolved")
)

// Error codes for club responses.
const (
	CodeAlreadyMember   = "ALREADY_MEMBER"
	CodeNotEligible     = "CLUB_CREATION_NOT_ELIGIBLE"
	CodeRequestPending  = "JOIN_REQUEST_PENDING"
	CodeRequestResolved = "JOIN_REQUEST_RESOLVED"
)

var validClubTypes = map[string]struct{}{
	ClubTypeBiking:   {},
	ClubTypeClimbing: {},
	ClubTypeHiking:   {},
	ClubTypeSkiing:   {},
	ClubTypeSurfing:  {},
	ClubTypeRunning:  {},
	ClubTypeCamping:  {},
}

// IsValidClubType reports whether t is a known activity category.
func IsValidClubType(t string) bool {
	_, ok := validClubTypes[t]
	return ok
}
