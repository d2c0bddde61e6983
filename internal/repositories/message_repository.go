package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"toolswap-chat/internal/models"
)

var (
	ErrMessageEmpty   = errors.New("message body is empty")
	ErrNotParticipant = errors.New("sender is not a conversation participant")
)

// MessageRepository defines the append-only message store.
type MessageRepository interface {
	Append(ctx context.Context, conversationID int, senderID int, body string, toolID *int) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append durably stores one message. The conversation row is locked for the
// duration of the transaction, so appends to the same conversation serialize
// and last_message_at always equals the newest message's created_at. Once
// Append returns, the message id and timestamp are authoritative and the
// caller may broadcast.
func (r *MessageRepo) Append(ctx context.Context, conversationID int, senderID int, body string, toolID *int) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, ErrMessageEmpty
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv, `SELECT id, tool_id, user_lo, user_hi, created_at, last_message_at
        FROM conversations WHERE id=$1 FOR UPDATE`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasParticipant(senderID) {
		return models.Message{}, ErrNotParticipant
	}

	var msg models.Message
	if err := tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, tool_id, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, conversation_id, sender_id, tool_id, body, created_at`,
		conversationID, senderID, toolID, body).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at=$1 WHERE id=$2`,
		msg.CreatedAt, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListForConversation returns the full history in insertion order.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, conversation_id, sender_id, tool_id, body, created_at
        FROM messages WHERE conversation_id=$1 ORDER BY id ASC`, conversationID)
	return msgs, err
}
