package chatclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolswap-chat/internal/ws"
)

func rawEvent(t *testing.T, eventType string, payload interface{}) ws.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return ws.Event{Type: eventType, Payload: raw}
}

func TestSendAppendsProvisionalMessage(t *testing.T) {
	s := newSession(1, "alice")

	msg, err := s.Send(7, 2, nil, "is the drill available?")
	require.NoError(t, err)
	assert.True(t, msg.Pending)
	assert.NotEmpty(t, msg.TempID)

	buf := s.Messages(7)
	require.Len(t, buf, 1)
	assert.Equal(t, "is the drill available?", buf[0].Body)
	assert.True(t, buf[0].Pending)
}

func TestSendRejectsEmptyBody(t *testing.T) {
	s := newSession(1, "alice")
	_, err := s.Send(7, 2, nil, "")
	assert.Error(t, err)
}

func TestEchoReplacesProvisionalInPlace(t *testing.T) {
	s := newSession(1, "alice")

	first, err := s.Send(7, 2, nil, "first")
	require.NoError(t, err)
	_, err = s.Send(7, 2, nil, "second")
	require.NoError(t, err)

	s.handleEvent(rawEvent(t, ws.EventReceiveMessage, ws.ReceiveMessagePayload{
		ID:             41,
		ConversationID: 7,
		SenderID:       1,
		ReceiverID:     2,
		Message:        "first",
		ClientTempID:   first.TempID,
		Timestamp:      time.Now(),
	}))

	buf := s.Messages(7)
	require.Len(t, buf, 2)
	assert.Equal(t, 41, buf[0].ID)
	assert.False(t, buf[0].Pending)
	assert.Equal(t, "second", buf[1].Body)
	assert.True(t, buf[1].Pending)
}

func TestEchoWithoutProvisionalAppends(t *testing.T) {
	s := newSession(1, "alice")

	s.handleEvent(rawEvent(t, ws.EventReceiveMessage, ws.ReceiveMessagePayload{
		ID:             9,
		ConversationID: 7,
		SenderID:       2,
		ReceiverID:     1,
		Message:        "sure, pick it up tomorrow",
		Timestamp:      time.Now(),
	}))

	buf := s.Messages(7)
	require.Len(t, buf, 1)
	assert.Equal(t, 9, buf[0].ID)
	assert.False(t, buf[0].Pending)
}

func TestUnreadCountsOnlyInactiveConversations(t *testing.T) {
	s := newSession(1, "alice")
	s.SetActive(7)

	incoming := func(conv, id int) ws.Event {
		return rawEvent(t, ws.EventReceiveMessage, ws.ReceiveMessagePayload{
			ID: id, ConversationID: conv, SenderID: 2, ReceiverID: 1,
			Message: "hello", Timestamp: time.Now(),
		})
	}

	s.handleEvent(incoming(7, 1))
	s.handleEvent(incoming(8, 2))
	s.handleEvent(incoming(8, 3))

	assert.Equal(t, 0, s.Unread(7))
	assert.Equal(t, 2, s.Unread(8))

	s.SetActive(8)
	assert.Equal(t, 0, s.Unread(8))
}

func TestOwnEchoDoesNotIncrementUnread(t *testing.T) {
	s := newSession(1, "alice")
	s.SetActive(0)

	msg, err := s.Send(7, 2, nil, "ping")
	require.NoError(t, err)

	s.handleEvent(rawEvent(t, ws.EventReceiveMessage, ws.ReceiveMessagePayload{
		ID: 5, ConversationID: 7, SenderID: 1, ReceiverID: 2,
		Message: "ping", ClientTempID: msg.TempID, Timestamp: time.Now(),
	}))

	assert.Equal(t, 0, s.Unread(7))
}

func TestMessageErrorMarksProvisionalFailed(t *testing.T) {
	s := newSession(1, "alice")

	msg, err := s.Send(7, 2, nil, "doomed")
	require.NoError(t, err)

	s.handleEvent(rawEvent(t, ws.EventMessageError, ws.MessageErrorPayload{
		ClientTempID: msg.TempID,
		Code:         "storage",
		Reason:       "persist message",
	}))

	buf := s.Messages(7)
	require.Len(t, buf, 1)
	assert.True(t, buf[0].Failed)
	assert.False(t, buf[0].Pending)
	assert.Equal(t, "persist message", buf[0].FailReason)
	assert.Empty(t, s.Uncertain())
}

func TestUncertainReportsStalePending(t *testing.T) {
	s := newSession(1, "alice", WithAckTimeout(10*time.Millisecond))

	_, err := s.Send(7, 2, nil, "no ack ever comes")
	require.NoError(t, err)
	assert.Empty(t, s.Uncertain())

	time.Sleep(20 * time.Millisecond)

	stale := s.Uncertain()
	require.Len(t, stale, 1)
	assert.Equal(t, "no ack ever comes", stale[0].Body)
}

func TestOnlineUsersSnapshotAndCallback(t *testing.T) {
	var seen []int
	s := newSession(1, "alice", WithPresenceHandler(func(online []int) { seen = online }))

	s.handleEvent(rawEvent(t, ws.EventOnlineUsers, ws.OnlineUsersPayload{Users: []int{1, 2, 5}}))

	assert.Equal(t, []int{1, 2, 5}, s.OnlineUsers())
	assert.Equal(t, []int{1, 2, 5}, seen)
}

func TestTypingCallback(t *testing.T) {
	var gotTyping bool
	var gotSignal TypingSignal
	s := newSession(1, "alice", WithTypingHandler(func(sig TypingSignal, typing bool) {
		gotSignal = sig
		gotTyping = typing
	}))

	s.handleEvent(rawEvent(t, ws.EventTyping, ws.TypingPayload{
		ConversationID: 7, SenderID: 2, SenderName: "bob", ReceiverID: 1,
	}))
	assert.True(t, gotTyping)
	assert.Equal(t, 2, gotSignal.SenderID)
	assert.Equal(t, "bob", gotSignal.SenderName)

	s.handleEvent(rawEvent(t, ws.EventStopTyping, ws.TypingPayload{
		ConversationID: 7, SenderID: 2, ReceiverID: 1,
	}))
	assert.False(t, gotTyping)
}

func TestLoadHistoryKeepsPendingTail(t *testing.T) {
	s := newSession(1, "alice")

	_, err := s.Send(7, 2, nil, "pending one")
	require.NoError(t, err)

	s.LoadHistory(7, []Message{
		{ID: 1, ConversationID: 7, SenderID: 2, Body: "old"},
		{ID: 2, ConversationID: 7, SenderID: 1, Body: "older reply"},
	})

	buf := s.Messages(7)
	require.Len(t, buf, 3)
	assert.Equal(t, "old", buf[0].Body)
	assert.Equal(t, "pending one", buf[2].Body)
	assert.True(t, buf[2].Pending)
}
