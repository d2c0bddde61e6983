package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"toolswap-chat/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, toolID int, userA int, userB int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// FindOrCreate returns the unique conversation for (tool, participant pair),
// creating it when absent. The insert races safely: the unique index on
// (tool_id, user_lo, user_hi) plus ON CONFLICT DO NOTHING guarantees that
// concurrent first calls converge on a single row.
func (r *ConversationRepo) FindOrCreate(ctx context.Context, toolID int, userA int, userB int) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO conversations (tool_id, user_lo, user_hi)
        VALUES ($1, $2, $3)
        ON CONFLICT (tool_id, user_lo, user_hi) DO NOTHING`, toolID, lo, hi); err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, tool_id, user_lo, user_hi, created_at, last_message_at
        FROM conversations WHERE tool_id=$1 AND user_lo=$2 AND user_hi=$3`, toolID, lo, hi)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, tool_id, user_lo, user_hi, created_at, last_message_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns the user's inbox, most recently active first, with the
// newest message body of each conversation as its preview.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.tool_id, c.user_lo, c.user_hi, c.created_at, c.last_message_at,
            COALESCE(m.body, '') AS last_message
        FROM conversations c
        LEFT JOIN LATERAL (
            SELECT body FROM messages WHERE conversation_id = c.id ORDER BY id DESC LIMIT 1
        ) m ON true
        WHERE c.user_lo=$1 OR c.user_hi=$1
        ORDER BY c.last_message_at DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var row struct {
			models.Conversation
			LastMessage string `db:"last_message"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		result = append(result, models.ConversationSummary{
			ConversationID: row.ID,
			ToolID:         row.ToolID,
			OtherUserID:    row.OtherParticipant(userID),
			LastMessage:    row.LastMessage,
			LastMessageAt:  row.LastMessageAt,
			CreatedAt:      row.CreatedAt,
		})
	}
	return result, rows.Err()
}
