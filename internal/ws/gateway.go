package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"toolswap-chat/internal/middleware"
	"toolswap-chat/internal/observability"
	"toolswap-chat/internal/presence"
	"toolswap-chat/internal/repositories"
)

// Gateway owns the websocket endpoint: connection lifecycle, audience
// membership, presence signalling and the append-then-broadcast message path.
type Gateway struct {
	hub      *Hub
	registry *presence.Registry
	msgRepo  repositories.MessageRepository
	auth     *middleware.Authenticator
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, registry *presence.Registry, msgRepo repositories.MessageRepository, auth *middleware.Authenticator) *Gateway {
	return &Gateway{
		hub:      hub,
		registry: registry,
		msgRepo:  msgRepo,
		auth:     auth,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, pushes the presence snapshot to it and runs
// the event loop until disconnect.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("toolswap-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn := NewConnection(wsConn, info)
	conn.Start()
	g.hub.Add(conn)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishConnEvent(ctx, "ws_connect", conn, "")

	// Presence snapshot goes to the new connection only; broadcasts happen on
	// registry mutations.
	_ = conn.Send(MarshalEvent(EventOnlineUsers, OnlineUsersPayload{Users: g.registry.Snapshot()}))

	go g.readLoop(ctx, conn, wsConn)
}

func (g *Gateway) readLoop(ctx context.Context, conn *Connection, wsConn *websocket.Conn) {
	var closeReason string
	defer func() {
		if conn.identified {
			g.registry.MarkOffline(conn.UserID())
			g.broadcastPresence()
		}
		g.hub.Remove(conn)
		conn.Close(websocket.CloseNormalClosure, "")
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishConnEvent(ctx, "ws_disconnect", conn, closeReason)
	}()

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishConnEvent(ctx, "ws_error", conn, closeReason)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			_ = conn.Send(MarshalEvent(EventError, ErrorPayload{Reason: "malformed event"}))
			continue
		}
		g.dispatch(ctx, conn, event, data)
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *Connection, event Event, raw []byte) {
	observability.IncWSEvent(event.Type)

	switch event.Type {
	case EventJoin:
		var p JoinPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.UserID != conn.UserID() {
			_ = conn.Send(MarshalEvent(EventError, ErrorPayload{Reason: "join user mismatch"}))
			return
		}
		g.hub.Join(p.UserID, conn)

	case EventOnline:
		var p PresencePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.UserID != conn.UserID() {
			_ = conn.Send(MarshalEvent(EventError, ErrorPayload{Reason: "presence user mismatch"}))
			return
		}
		// One connection contributes a single presence reference no matter how
		// often it re-announces.
		if !conn.identified {
			conn.identified = true
			g.registry.MarkOnline(conn.UserID())
			g.broadcastPresence()
		}

	case EventOffline:
		if conn.identified {
			conn.identified = false
			g.registry.MarkOffline(conn.UserID())
			g.broadcastPresence()
		}

	case EventTyping, EventStopTyping:
		var p TypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.SenderID != conn.UserID() {
			return
		}
		// Best effort: forwarded verbatim, may be lost if the receiver has no
		// live connections.
		g.hub.EmitToUser(p.ReceiverID, raw)

	case EventSendMessage:
		g.handleSendMessage(ctx, conn, event.Payload)

	default:
		_ = conn.Send(MarshalEvent(EventError, ErrorPayload{Reason: "unknown event type"}))
	}
}

// handleSendMessage persists the message and, only after the append committed,
// broadcasts the authoritative copy to both participants' audiences. Failures
// are acknowledged to the sending connection so the client can mark its
// provisional entry instead of assuming delivery.
func (g *Gateway) handleSendMessage(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		_ = conn.Send(MarshalEvent(EventMessageError, MessageErrorPayload{Code: "validation", Reason: "malformed payload"}))
		return
	}
	if p.SenderID != conn.UserID() {
		_ = conn.Send(MarshalEvent(EventMessageError, MessageErrorPayload{ClientTempID: p.ClientTempID, Code: "unauthorized", Reason: "sender mismatch"}))
		return
	}

	msg, err := g.msgRepo.Append(ctx, p.ConversationID, p.SenderID, p.Message, p.ToolID)
	if err != nil {
		log.Printf("message append failed conversation=%d sender=%d: %v", p.ConversationID, p.SenderID, err)
		_ = conn.Send(MarshalEvent(EventMessageError, MessageErrorPayload{
			ClientTempID: p.ClientTempID,
			Code:         appendErrorCode(err),
			Reason:       err.Error(),
		}))
		return
	}
	observability.IncMessagePersisted("ws")

	out := MarshalEvent(EventReceiveMessage, ReceiveMessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     p.ReceiverID,
		Message:        msg.Body,
		ToolID:         msg.ToolID,
		SenderName:     p.SenderName,
		ClientTempID:   p.ClientTempID,
		Timestamp:      msg.CreatedAt,
	})
	// Both audiences: the sender's other devices need the authoritative copy
	// too; the client dedupes via the correlation id.
	g.hub.EmitToUser(p.ReceiverID, out)
	g.hub.EmitToUser(p.SenderID, out)
}

func (g *Gateway) broadcastPresence() {
	snapshot := g.registry.Snapshot()
	observability.SetOnlineUsers(len(snapshot))
	g.hub.BroadcastAll(MarshalEvent(EventOnlineUsers, OnlineUsersPayload{Users: snapshot}))
}

func (g *Gateway) validateToken(header string) (int, error) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return g.auth.ValidateToken(header[len(prefix):])
	}
	return 0, middleware.ErrInvalidToken
}

func (g *Gateway) publishConnEvent(ctx context.Context, event string, conn *Connection, reason string) {
	info := conn.Info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.NewEventEnvelope("ws_events", event, payload), headers)
}

func appendErrorCode(err error) string {
	switch {
	case errors.Is(err, repositories.ErrMessageEmpty):
		return "validation"
	case errors.Is(err, repositories.ErrNotParticipant):
		return "unauthorized"
	case errors.Is(err, repositories.ErrConversationNotFound):
		return "not_found"
	default:
		return "storage"
	}
}
