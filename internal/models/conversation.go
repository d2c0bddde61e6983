package models

import "time"

// Conversation anchors a dialogue between exactly two users about one tool.
// The participant pair is stored sorted so that (tool, pair) is unique.
type Conversation struct {
	ID            int       `db:"id" json:"id"`
	ToolID        int       `db:"tool_id" json:"tool_id"`
	UserLo        int       `db:"user_lo" json:"user_lo"`
	UserHi        int       `db:"user_hi" json:"user_hi"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID int) bool {
	return c.UserLo == userID || c.UserHi == userID
}

// OtherParticipant returns the participant that is not userID.
func (c Conversation) OtherParticipant(userID int) int {
	if c.UserLo == userID {
		return c.UserHi
	}
	return c.UserLo
}

// ConversationSummary is the API-friendly inbox view of a conversation.
// LastMessage previews the newest message body, empty for a fresh
// conversation.
type ConversationSummary struct {
	ConversationID int       `db:"id" json:"conversation_id"`
	ToolID         int       `db:"tool_id" json:"tool_id"`
	OtherUserID    int       `json:"other_user_id"`
	LastMessage    string    `db:"last_message" json:"last_message"`
	LastMessageAt  time.Time `db:"last_message_at" json:"last_message_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
