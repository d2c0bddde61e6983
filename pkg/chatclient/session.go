// Package chatclient implements the consumer side of the chat gateway
// contract: a live session that buffers conversation views, renders outgoing
// messages optimistically and reconciles them against the authoritative
// broadcast copies.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"toolswap-chat/internal/ws"
)

// DefaultAckTimeout bounds how long a provisional message may wait for its
// authoritative echo before Uncertain reports it.
const DefaultAckTimeout = 10 * time.Second

// Message is the session's view of one chat message. Provisional entries
// carry a TempID and Pending=true until the server echo replaces them.
type Message struct {
	ID             int
	ConversationID int
	SenderID       int
	ReceiverID     int
	Body           string
	ToolID         *int
	SenderName     string
	TempID         string
	Timestamp      time.Time
	Pending        bool
	Failed         bool
	FailReason     string
	sentAt         time.Time
}

// TypingSignal mirrors the gateway's typing payload so importers never need
// the service's internal wire types.
type TypingSignal struct {
	ConversationID int
	SenderID       int
	SenderName     string
	ReceiverID     int
}

// Session is a connected chat client for one user. All methods are safe for
// concurrent use; the read loop runs on its own goroutine.
type Session struct {
	userID     int
	userName   string
	ackTimeout time.Duration

	onPresence func([]int)
	onTyping   func(TypingSignal, bool)

	mu      sync.Mutex
	buffers map[int][]Message
	unread  map[int]int
	active  int
	online  []int

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// Option customizes a Session.
type Option func(*Session)

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(d time.Duration) Option {
	return func(s *Session) { s.ackTimeout = d }
}

// WithPresenceHandler registers a callback for presence snapshots.
func WithPresenceHandler(fn func(online []int)) Option {
	return func(s *Session) { s.onPresence = fn }
}

// WithTypingHandler registers a callback for typing signals; the bool is true
// for typing and false for stop_typing.
func WithTypingHandler(fn func(sig TypingSignal, typing bool)) Option {
	return func(s *Session) { s.onTyping = fn }
}

func newSession(userID int, userName string, opts ...Option) *Session {
	s := &Session{
		userID:     userID,
		userName:   userName,
		ackTimeout: DefaultAckTimeout,
		buffers:    make(map[int][]Message),
		unread:     make(map[int]int),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the gateway, announces the user online and subscribes to
// the user's private audience.
func Dial(ctx context.Context, url, token string, userID int, userName string, opts ...Option) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	s := newSession(userID, userName, opts...)
	s.conn = conn
	go s.readLoop()

	if err := s.emit(ws.EventJoin, ws.JoinPayload{UserID: userID}); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.emit(ws.EventOnline, ws.PresencePayload{UserID: userID}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Send renders body optimistically into the local buffer and emits the
// send_message event. The returned Message is the provisional copy.
func (s *Session) Send(conversationID, receiverID int, toolID *int, body string) (Message, error) {
	if body == "" {
		return Message{}, errors.New("empty message body")
	}

	msg := Message{
		ConversationID: conversationID,
		SenderID:       s.userID,
		ReceiverID:     receiverID,
		Body:           body,
		ToolID:         toolID,
		SenderName:     s.userName,
		TempID:         uuid.NewString(),
		Timestamp:      time.Now(),
		Pending:        true,
		sentAt:         time.Now(),
	}

	s.mu.Lock()
	s.buffers[conversationID] = append(s.buffers[conversationID], msg)
	s.mu.Unlock()

	err := s.emit(ws.EventSendMessage, ws.SendMessagePayload{
		ConversationID: conversationID,
		SenderID:       s.userID,
		ReceiverID:     receiverID,
		Message:        body,
		ToolID:         toolID,
		SenderName:     s.userName,
		ClientTempID:   msg.TempID,
		Timestamp:      msg.Timestamp.Format(time.RFC3339Nano),
	})
	return msg, err
}

// LoadHistory replaces the local buffer for a conversation with fetched
// history (stored order). Pending entries are preserved at the tail.
func (s *Session) LoadHistory(conversationID int, history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Message
	for _, m := range s.buffers[conversationID] {
		if m.Pending {
			pending = append(pending, m)
		}
	}
	s.buffers[conversationID] = append(history, pending...)
}

// Messages returns a copy of the conversation buffer in delivery order.
func (s *Session) Messages(conversationID int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[conversationID]
	out := make([]Message, len(buf))
	copy(out, buf)
	return out
}

// SetActive marks the conversation as the visible view and clears its unread
// counter. Zero means no conversation is open.
func (s *Session) SetActive(conversationID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conversationID
	if conversationID != 0 {
		delete(s.unread, conversationID)
	}
}

// Unread returns the per-conversation unread counter.
func (s *Session) Unread(conversationID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID]
}

// OnlineUsers returns the latest presence snapshot.
func (s *Session) OnlineUsers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.online))
	copy(out, s.online)
	return out
}

// Uncertain returns provisional messages that have waited longer than the ack
// timeout without an authoritative echo or a failure ack. Callers should
// offer retry rather than assume delivery.
func (s *Session) Uncertain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ackTimeout)
	var out []Message
	for _, buf := range s.buffers {
		for _, m := range buf {
			if m.Pending && !m.Failed && m.sentAt.Before(cutoff) {
				out = append(out, m)
			}
		}
	}
	return out
}

// Typing signals the receiver that the user is typing. Best effort.
func (s *Session) Typing(conversationID, receiverID int) error {
	return s.emit(ws.EventTyping, ws.TypingPayload{
		ConversationID: conversationID,
		SenderID:       s.userID,
		SenderName:     s.userName,
		ReceiverID:     receiverID,
	})
}

// StopTyping cancels a typing signal. Best effort.
func (s *Session) StopTyping(conversationID, receiverID int) error {
	return s.emit(ws.EventStopTyping, ws.TypingPayload{
		ConversationID: conversationID,
		SenderID:       s.userID,
		ReceiverID:     receiverID,
	})
}

// Offline announces the user offline without closing the socket.
func (s *Session) Offline() error {
	return s.emit(ws.EventOffline, ws.PresencePayload{UserID: s.userID})
}

// Close tears the session down.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *Session) emit(eventType string, payload interface{}) error {
	if s.conn == nil {
		return nil
	}
	select {
	case <-s.closed:
		return errors.New("session closed")
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, ws.MarshalEvent(eventType, payload))
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var event ws.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("chatclient: malformed event: %v", err)
			continue
		}
		s.handleEvent(event)
	}
}

func (s *Session) handleEvent(event ws.Event) {
	switch event.Type {
	case ws.EventReceiveMessage:
		var p ws.ReceiveMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		s.applyAuthoritative(p)

	case ws.EventMessageError:
		var p ws.MessageErrorPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		s.applyFailure(p)

	case ws.EventOnlineUsers:
		var p ws.OnlineUsersPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		s.online = p.Users
		s.mu.Unlock()
		if s.onPresence != nil {
			s.onPresence(p.Users)
		}

	case ws.EventTyping, ws.EventStopTyping:
		var p ws.TypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		if s.onTyping != nil {
			s.onTyping(TypingSignal{
				ConversationID: p.ConversationID,
				SenderID:       p.SenderID,
				SenderName:     p.SenderName,
				ReceiverID:     p.ReceiverID,
			}, event.Type == ws.EventTyping)
		}
	}
}

// applyAuthoritative reconciles a broadcast message against the local buffer.
// A matching correlation id replaces the provisional entry in place; anything
// else appends. The echo never produces a duplicate.
func (s *Session) applyAuthoritative(p ws.ReceiveMessagePayload) {
	authoritative := Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		ReceiverID:     p.ReceiverID,
		Body:           p.Message,
		ToolID:         p.ToolID,
		SenderName:     p.SenderName,
		TempID:         p.ClientTempID,
		Timestamp:      p.Timestamp,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[p.ConversationID]
	if p.ClientTempID != "" {
		for i, m := range buf {
			if m.TempID == p.ClientTempID {
				buf[i] = authoritative
				return
			}
		}
	}
	s.buffers[p.ConversationID] = append(buf, authoritative)

	if p.SenderID != s.userID && p.ConversationID != s.active {
		s.unread[p.ConversationID]++
	}
}

func (s *Session) applyFailure(p ws.MessageErrorPayload) {
	if p.ClientTempID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for convID, buf := range s.buffers {
		for i, m := range buf {
			if m.TempID == p.ClientTempID && m.Pending {
				buf[i].Pending = false
				buf[i].Failed = true
				buf[i].FailReason = p.Reason
				s.buffers[convID] = buf
				return
			}
		}
	}
}
