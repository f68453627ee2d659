package model

import (
	"errors"
	"time"
)

// Message types
const (
	MessageTypeChat         = "CHAT"
	MessageTypeJoinRequest  = "JOIN_REQUEST"
	MessageTypeJoinApproved = "JOIN_APPROVED"
)

const MaxMessageLength = 2000

// Message is a directed communication unit between two users, optionally
// tagged with the ride it concerns.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	MsgType    string    `db:"msg_type" json:"type"`
	RideID     *int64    `db:"ride_id" json:"ride_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Joined fields
	Sender   *UserSummary `json:"sender,omitempty"`
	Receiver *UserSummary `json:"receiver,omitempty"`
}

// Conversation is the persisted thread between two users. It is maintained
// transactionally with every message insert instead of being recomputed from
// sender/receiver pairs on read.
type Conversation struct {
	ID            int64     `db:"id" json:"id"`
	UserAID       int64     `db:"user_a_id" json:"-"`
	UserBID       int64     `db:"user_b_id" json:"-"`
	LastMessageID *int64    `db:"last_message_id" json:"last_message_id,omitempty"`
	UnreadA       int       `db:"unread_a" json:"-"`
	UnreadB       int       `db:"unread_b" json:"-"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	// Viewer-relative fields filled by the service
	Other       *UserSummary `json:"other,omitempty"`
	LastMessage *Message     `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

// OtherUserID returns the participant that is not the viewer.
func (c *Conversation) OtherUserID(viewerID int64) int64 {
	if c.UserAID == viewerID {
		return c.UserBID
	}
	return c.UserAID
}

// UnreadFor returns the viewer's unread counter.
func (c *Conversation) UnreadFor(viewerID int64) int {
	if c.UserAID == viewerID {
		return c.UnreadA
	}
	return c.UnreadB
}

// SendMessageRequest is the request body for POST /messages.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	MsgType    string `json:"type"`
	RideID     *int64 `json:"ride_id,omitempty"`
}

// Message errors
var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMessageSender     = errors.New("not the sender of this message")
	ErrMessageToSelf        = errors.New("cannot message yourself")
	ErrEmptyMessage         = errors.New("message content is required")
	ErrMessageTooLong       = errors.New("message content too long")
	ErrInvalidMsgType       = errors.New("invalid message type")
	ErrConversationNotFound = errors.New("conversation not found")
)

var validMessageTypes = map[string]struct{}{
	MessageTypeChat:         {},
	MessageTypeJoinRequest:  {},
	MessageTypeJoinApproved: {},
}

// IsValidMessageType reports whether t is a known message type.
func IsValidMessageType(t string) bool {
	_, ok := validMessageTypes[t]
	return ok
}

// ConversationKey orders two user IDs into the canonical (a, b) pair used by
// the conversations table's uniqueness constraint.
func ConversationKey(x, y int64) (int64, int64) {
	if x < y {
		return x, y
	}
	return y, x
}
