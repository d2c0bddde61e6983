package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks all live connections and the per-user private audiences used for
// message delivery. A user may hold several simultaneous connections; all of
// them receive that user's traffic.
type Hub struct {
	mu        sync.RWMutex
	conns     map[*Connection]struct{}
	audiences map[int]map[*Connection]struct{}
	connUser  map[*Connection]int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:     make(map[*Connection]struct{}),
		audiences: make(map[int]map[*Connection]struct{}),
		connUser:  make(map[*Connection]int),
	}
}

// Add registers a freshly upgraded connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Join subscribes the connection to the user's private audience. A connection
// belongs to at most one audience; re-joining moves it.
func (h *Hub) Join(userID int, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	h.leaveLocked(conn)

	audience := h.audiences[userID]
	if audience == nil {
		audience = make(map[*Connection]struct{})
		h.audiences[userID] = audience
	}
	audience[conn] = struct{}{}
	h.connUser[conn] = userID
}

// Remove drops the connection from its audience and the hub.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn)
	delete(h.conns, conn)
}

// EmitToUser delivers payload to every connection in the user's audience and
// returns the number of successful deliveries. An empty audience is not an
// error: delivery over the socket is a notification convenience, the store is
// the source of truth.
func (h *Hub) EmitToUser(userID int, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.audiences[userID]))
	for conn := range h.audiences[userID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close(websocket.CloseGoingAway, "write failed")
			h.Remove(conn)
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastAll delivers payload to every live connection (presence snapshots).
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close(websocket.CloseGoingAway, "write failed")
			h.Remove(conn)
		}
	}
}

// AudienceSize reports the number of connections subscribed under a user id.
func (h *Hub) AudienceSize(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.audiences[userID])
}

func (h *Hub) leaveLocked(conn *Connection) {
	userID, ok := h.connUser[conn]
	if !ok {
		return
	}
	delete(h.connUser, conn)
	if audience, ok := h.audiences[userID]; ok {
		delete(audience, conn)
		if len(audience) == 0 {
			delete(h.audiences, userID)
		}
	}
}
