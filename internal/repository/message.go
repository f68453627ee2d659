package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wildpals/internal/model"
)

const messageColumns = `id, sender_id, receiver_id, content, msg_type, ride_id, created_at`

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, msg_type, ride_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.MsgType,
		msg.RideID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	var msg model.Message
	err := r.db.GetContext(ctx, &msg, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// Delete removes a message only when senderID matches; callers translate the
// zero-row case into not-found vs not-sender.
func (r *messageRepository) Delete(ctx context.Context, msgID, senderID int64) error {
	query := `DELETE FROM messages WHERE id = $1 AND sender_id = $2`
	result, err := r.db.ExecContext(ctx, query, msgID, senderID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, msgID); err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		if exists {
			return model.ErrNotMessageSender
		}
		return model.ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return msgs, nil
}

func (r *messageRepository) ListForRide(ctx context.Context, rideID int64) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ride_id = $1
		ORDER BY created_at ASC
	`

	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, query, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride messages: %w", err)
	}

	return msgs, nil
}

func (r *messageRepository) UpsertConversation(ctx context.Context, tx *sqlx.Tx, msg *model.Message) error {
	userA, userB := model.ConversationKey(msg.SenderID, msg.ReceiverID)

	// The receiver's unread side depends on which slot they landed in.
	unreadA, unreadB := 0, 1
	if msg.ReceiverID == userA {
		unreadA, unreadB = 1, 0
	}

	query := `
		INSERT INTO conversations (user_a_id, user_b_id, last_message_id, unread_a, unread_b, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_a_id, user_b_id) DO UPDATE
		SET last_message_id = EXCLUDED.last_message_id,
		    unread_a = conversations.unread_a + EXCLUDED.unread_a,
		    unread_b = conversations.unread_b + EXCLUDED.unread_b,
		    updated_at = NOW()
	`
	_, err := tx.ExecContext(ctx, query, userA, userB, msg.ID, unreadA, unreadB)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return nil
}

func (r *messageRepository) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	query := `
		SELECT id, user_a_id, user_b_id, last_message_id, unread_a, unread_b, updated_at
		FROM conversations
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY updated_at DESC
	`

	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	return convs, nil
}

func (r *messageRepository) GetConversation(ctx context.Context, userX, userY int64) (*model.Conversation, error) {
	userA, userB := model.ConversationKey(userX, userY)

	query := `
		SELECT id, user_a_id, user_b_id, last_message_id, unread_a, unread_b, updated_at
		FROM conversations
		WHERE user_a_id = $1 AND user_b_id = $2
	`

	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, query, userA, userB)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, viewerID, otherUserID int64) error {
	userA, userB := model.ConversationKey(viewerID, otherUserID)

	var query string
	if viewerID == userA {
		query = `UPDATE conversations SET unread_a = 0 WHERE user_a_id = $1 AND user_b_id = $2`
	} else {
		query = `UPDATE conversations SET unread_b = 0 WHERE user_a_id = $1 AND user_b_id = $2`
	}

	_, err := r.db.ExecContext(ctx, query, userA, userB)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}

	return nil
}

func (r *messageRepository) GetMessagesByIDs(ctx context.Context, ids []int64) (map[int64]model.Message, error) {
	if len(ids) == 0 {
		return map[int64]model.Message{}, nil
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ANY($1)`

	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get messages by ids: %w", err)
	}

	result := make(map[int64]model.Message, len(msgs))
	for _, m := range msgs {
		result[m.ID] = m
	}

	return result, nil
}
