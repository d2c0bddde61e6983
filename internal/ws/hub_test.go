package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(userID int) *Connection {
	return NewConnection(nil, ConnInfo{UserID: userID})
}

func drain(t *testing.T, conn *Connection) []byte {
	t.Helper()
	select {
	case msg := <-conn.send:
		return msg
	default:
		t.Fatal("expected a queued message")
		return nil
	}
}

func TestJoinSubscribesToAudience(t *testing.T) {
	hub := NewHub()
	conn := testConn(1)

	hub.Add(conn)
	hub.Join(1, conn)

	assert.Equal(t, 1, hub.AudienceSize(1))
}

func TestJoinWithoutAddIsIgnored(t *testing.T) {
	hub := NewHub()
	conn := testConn(1)

	hub.Join(1, conn)

	assert.Equal(t, 0, hub.AudienceSize(1))
}

func TestRejoinMovesAudience(t *testing.T) {
	hub := NewHub()
	conn := testConn(1)
	hub.Add(conn)

	hub.Join(1, conn)
	hub.Join(2, conn)

	assert.Equal(t, 0, hub.AudienceSize(1))
	assert.Equal(t, 1, hub.AudienceSize(2))
}

func TestEmitToUserReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	first := testConn(1)
	second := testConn(1)
	other := testConn(2)
	for _, conn := range []*Connection{first, second, other} {
		hub.Add(conn)
		hub.Join(conn.UserID(), conn)
	}

	delivered := hub.EmitToUser(1, []byte("hello"))

	assert.Equal(t, 2, delivered)
	assert.Equal(t, "hello", string(drain(t, first)))
	assert.Equal(t, "hello", string(drain(t, second)))
	assert.Empty(t, other.send)
}

func TestEmitToUserEmptyAudience(t *testing.T) {
	hub := NewHub()

	delivered := hub.EmitToUser(42, []byte("hello"))

	assert.Equal(t, 0, delivered)
}

func TestEmitToUserDropsClosedConnections(t *testing.T) {
	hub := NewHub()
	live := testConn(1)
	dead := testConn(1)
	for _, conn := range []*Connection{live, dead} {
		hub.Add(conn)
		hub.Join(1, conn)
	}
	dead.Close(1000, "test")

	delivered := hub.EmitToUser(1, []byte("hello"))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, hub.AudienceSize(1))
}

func TestRemoveLeavesAudience(t *testing.T) {
	hub := NewHub()
	conn := testConn(1)
	hub.Add(conn)
	hub.Join(1, conn)

	hub.Remove(conn)

	assert.Equal(t, 0, hub.AudienceSize(1))
	assert.Equal(t, 0, hub.EmitToUser(1, []byte("hello")))
}

func TestBroadcastAllReachesUnjoinedConnections(t *testing.T) {
	hub := NewHub()
	joined := testConn(1)
	fresh := testConn(2)
	hub.Add(joined)
	hub.Join(1, joined)
	hub.Add(fresh)

	hub.BroadcastAll([]byte("snapshot"))

	assert.Equal(t, "snapshot", string(drain(t, joined)))
	assert.Equal(t, "snapshot", string(drain(t, fresh)))
}

func TestSendAfterCloseFails(t *testing.T) {
	conn := testConn(1)
	conn.Close(1000, "test")

	err := conn.Send([]byte("late"))

	require.Error(t, err)
	assert.ErrorIs(t, err, errConnClosed)
}
