package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"wildpals/internal/model"
	"wildpals/internal/repository"
)

const defaultMessageListLimit = 100

type MessageService struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	db          *sqlx.DB
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	db *sqlx.DB,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		db:          db,
	}
}

// Send persists a message and bumps the sender/receiver conversation in one
// transaction, so the thread's last message and unread counter can never
// drift from the messages table.
func (s *MessageService) Send(ctx context.Context, senderID int64, req *model.SendMessageRequest) (*model.Message, error) {
	if req.ReceiverID == senderID {
		return nil, model.ErrMessageToSelf
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.ErrEmptyMessage
	}
	if len(content) > model.MaxMessageLength {
		return nil, model.ErrMessageTooLong
	}

	msgType := req.MsgType
	if msgType == "" {
		msgType = model.MessageTypeChat
	}
	if !model.IsValidMessageType(msgType) {
		return nil, model.ErrInvalidMsgType
	}

	if _, err := s.userRepo.GetByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    content,
		MsgType:    msgType,
		RideID:     req.RideID,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.messageRepo.Create(ctx, tx, msg); err != nil {
		return nil, err
	}

	if err := s.messageRepo.UpsertConversation(ctx, tx, msg); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return msg, nil
}

// ListForUser returns the caller's messages, newest first.
func (s *MessageService) ListForUser(ctx context.Context, userID int64) ([]model.Message, error) {
	msgs, err := s.messageRepo.ListForUser(ctx, userID, defaultMessageListLimit)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, msgs)
	return msgs, nil
}

// ListForRide returns the messages attached to a ride, oldest first.
func (s *MessageService) ListForRide(ctx context.Context, rideID int64) ([]model.Message, error) {
	msgs, err := s.messageRepo.ListForRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, msgs)
	return msgs, nil
}

// ListConversations returns the caller's threads, most recently active first,
// with the other participant, last message and unread count resolved for the
// viewer.
func (s *MessageService) ListConversations(ctx context.Context, viewerID int64) ([]model.Conversation, error) {
	convs, err := s.messageRepo.ListConversations(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	otherIDs := make([]int64, 0, len(convs))
	msgIDs := make([]int64, 0, len(convs))
	for _, c := range convs {
		otherIDs = append(otherIDs, c.OtherUserID(viewerID))
		if c.LastMessageID != nil {
			msgIDs = append(msgIDs, *c.LastMessageID)
		}
	}

	summaries, err := s.userRepo.GetSummaries(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	lastMessages, err := s.messageRepo.GetMessagesByIDs(ctx, msgIDs)
	if err != nil {
		return nil, err
	}

	for i := range convs {
		otherID := convs[i].OtherUserID(viewerID)
		if u, ok := summaries[otherID]; ok {
			convs[i].Other = &u
		}
		if convs[i].LastMessageID != nil {
			if m, ok := lastMessages[*convs[i].LastMessageID]; ok {
				convs[i].LastMessage = &m
			}
		}
		convs[i].UnreadCount = convs[i].UnreadFor(viewerID)
	}

	return convs, nil
}

// MarkConversationRead zeroes the viewer's unread counter for the thread with
// the other user. The thread must exist.
func (s *MessageService) MarkConversationRead(ctx context.Context, viewerID, otherUserID int64) error {
	conv, err := s.messageRepo.GetConversation(ctx, viewerID, otherUserID)
	if err != nil {
		return err
	}
	if conv == nil {
		return model.ErrConversationNotFound
	}
	return s.messageRepo.MarkConversationRead(ctx, viewerID, otherUserID)
}

// Delete removes a message. Sender only.
func (s *MessageService) Delete(ctx context.Context, msgID, callerID int64) error {
	return s.messageRepo.Delete(ctx, msgID, callerID)
}

// enrich attaches sender and receiver summaries in one batch query.
func (s *MessageService) enrich(ctx context.Context, msgs []model.Message) {
	if len(msgs) == 0 {
		return
	}

	ids := make([]int64, 0, len(msgs)*2)
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}

	summaries, err := s.userRepo.GetSummaries(ctx, ids)
	if err != nil {
		return
	}

	for i := range msgs {
		if u, ok := summaries[msgs[i].SenderID]; ok {
			msgs[i].Sender = &u
		}
		if u, ok := summaries[msgs[i].ReceiverID]; ok {
			msgs[i].Receiver = &u
		}
	}
}
