package models

import "time"

// Message is one persisted chat message. Messages are immutable: the id and
// created_at assigned at insert time are authoritative and never change.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Body           string    `db:"body" json:"body"`
	ToolID         *int      `db:"tool_id" json:"tool_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
