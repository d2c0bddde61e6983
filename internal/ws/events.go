package ws

import (
	"encoding/json"
	"time"
)

// Event names on the websocket channel.
const (
	EventJoin           = "join"
	EventOnline         = "online"
	EventOffline        = "offline"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventSendMessage    = "send_message"
	EventOnlineUsers    = "online_users"
	EventReceiveMessage = "receive_message"
	EventMessageError   = "message_error"
	EventError          = "error"
)

// Event is the envelope for every frame in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload subscribes the connection to the user's private audience.
type JoinPayload struct {
	UserID int `json:"user_id"`
}

// PresencePayload accompanies online/offline signals.
type PresencePayload struct {
	UserID int `json:"user_id"`
}

// OnlineUsersPayload is the full presence snapshot.
type OnlineUsersPayload struct {
	Users []int `json:"users"`
}

// TypingPayload is forwarded verbatim to the receiver's audience. Typing
// signals are best effort: nothing is persisted and lost frames are fine.
type TypingPayload struct {
	ConversationID int    `json:"conversation_id"`
	SenderID       int    `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`
	ReceiverID     int    `json:"receiver_id"`
}

// SendMessagePayload is the client's send request. Timestamp, when present,
// is advisory only; the server-assigned one wins. ClientTempID correlates the
// client's provisional copy with the authoritative broadcast.
type SendMessagePayload struct {
	ConversationID int    `json:"conversation_id"`
	SenderID       int    `json:"sender_id"`
	ReceiverID     int    `json:"receiver_id"`
	Message        string `json:"message"`
	ToolID         *int   `json:"tool_id,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
	ClientTempID   string `json:"client_temp_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ReceiveMessagePayload echoes the send request plus the authoritative id and
// timestamp assigned at persistence time.
type ReceiveMessagePayload struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	ReceiverID     int       `json:"receiver_id"`
	Message        string    `json:"message"`
	ToolID         *int      `json:"tool_id,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	ClientTempID   string    `json:"client_temp_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageErrorPayload acknowledges a failed send so the client can mark its
// provisional entry instead of assuming delivery.
type MessageErrorPayload struct {
	ClientTempID string `json:"client_temp_id,omitempty"`
	Code         string `json:"code"`
	Reason       string `json:"reason"`
}

// ErrorPayload reports a rejected event.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// MarshalEvent encodes an event envelope. Payloads are plain structs; a
// marshal failure is a programming error and yields an empty error event.
func MarshalEvent(eventType string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return data
}
