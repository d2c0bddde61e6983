package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"toolswap-chat/internal/models"
	"toolswap-chat/internal/observability"
	"toolswap-chat/internal/repositories"
	"toolswap-chat/internal/ws"
)

// ChatHandler serves the REST collaborator surface of the conversation
// subsystem: inbox listing, find-or-create, and the durability fallback for
// posting messages when the push channel is unavailable.
type ChatHandler struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	userRepo repositories.UserRepository
	toolRepo repositories.ToolRepository
	hub      *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, userRepo repositories.UserRepository, toolRepo repositories.ToolRepository, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		toolRepo: toolRepo,
		hub:      hub,
	}
}

type participantView struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

type messageView struct {
	models.Message
	SenderName string `json:"sender_name,omitempty"`
}

// ListConversations returns the caller's inbox sorted by latest activity.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.convRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	otherIDs := make([]int, 0, len(summaries))
	toolIDs := make([]int, 0, len(summaries))
	for _, s := range summaries {
		otherIDs = append(otherIDs, s.OtherUserID)
		toolIDs = append(toolIDs, s.ToolID)
	}
	users, err := h.userRepo.BulkUsers(c.Request.Context(), otherIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user info"})
		return
	}
	nameByID := map[int]string{}
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}
	tools, err := h.toolRepo.BulkTools(c.Request.Context(), toolIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tool info"})
		return
	}
	titleByID := map[int]string{}
	for _, tool := range tools {
		titleByID[tool.ID] = tool.Title
	}

	type inboxEntry struct {
		ConversationID int       `json:"conversation_id"`
		ToolID         int       `json:"tool_id"`
		ToolTitle      string    `json:"tool_title,omitempty"`
		OtherUserID    int       `json:"other_user_id"`
		OtherUserName  string    `json:"other_user_name,omitempty"`
		LastMessage    string    `json:"last_message"`
		LastMessageAt  time.Time `json:"last_message_at"`
		CreatedAt      time.Time `json:"created_at"`
	}

	entries := make([]inboxEntry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, inboxEntry{
			ConversationID: s.ConversationID,
			ToolID:         s.ToolID,
			ToolTitle:      titleByID[s.ToolID],
			OtherUserID:    s.OtherUserID,
			OtherUserName:  nameByID[s.OtherUserID],
			LastMessage:    s.LastMessage,
			LastMessageAt:  s.LastMessageAt,
			CreatedAt:      s.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": entries})
}

// GetOrCreateConversation resolves the unique conversation for
// (tool, caller, other user), creating it on first contact, and returns it
// populated with participant names, the tool title and the full history.
func (h *ChatHandler) GetOrCreateConversation(c *gin.Context) {
	toolID, err := strconv.Atoi(c.Param("tool_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tool id"})
		return
	}
	otherUserID, err := strconv.Atoi(c.Param("other_user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	if _, err := h.toolRepo.GetTool(c.Request.Context(), toolID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrToolNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "tool not found"})
		return
	}
	if _, err := h.userRepo.GetUser(c.Request.Context(), otherUserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	conv, err := h.convRepo.FindOrCreate(c.Request.Context(), toolID, userID, otherUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve conversation"})
		return
	}

	resp, err := h.populateConversation(c, conv)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PostMessage appends a message over HTTP. It runs the same append path as
// the websocket gateway and performs the same dual-audience broadcast, so the
// two transports can never diverge.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ConversationID int    `json:"conversation_id" binding:"required"`
		ReceiverID     int    `json:"receiver_id"`
		Message        string `json:"message" binding:"required"`
		ToolID         *int   `json:"tool_id"`
		SenderName     string `json:"sender_name"`
		ClientTempID   string `json:"client_temp_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetInt("userID")

	msg, err := h.msgRepo.Append(c.Request.Context(), req.ConversationID, userID, req.Message, req.ToolID)
	if err != nil {
		status, reason := appendErrorStatus(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}
	observability.IncMessagePersisted("http")

	receiverID := req.ReceiverID
	if receiverID == 0 {
		if conv, err := h.convRepo.GetConversation(c.Request.Context(), msg.ConversationID); err == nil {
			receiverID = conv.OtherParticipant(userID)
		}
	}

	if h.hub != nil {
		out := ws.MarshalEvent(ws.EventReceiveMessage, ws.ReceiveMessagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReceiverID:     receiverID,
			Message:        msg.Body,
			ToolID:         msg.ToolID,
			SenderName:     req.SenderName,
			ClientTempID:   req.ClientTempID,
			Timestamp:      msg.CreatedAt,
		})
		h.hub.EmitToUser(receiverID, out)
		h.hub.EmitToUser(msg.SenderID, out)
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) populateConversation(c *gin.Context, conv models.Conversation) (gin.H, error) {
	ctx := c.Request.Context()

	users, err := h.userRepo.BulkUsers(ctx, []int{conv.UserLo, conv.UserHi})
	if err != nil {
		return nil, err
	}
	nameByID := map[int]string{}
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}

	tool, err := h.toolRepo.GetTool(ctx, conv.ToolID)
	if err != nil {
		return nil, err
	}

	msgs, err := h.msgRepo.ListForConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{Message: m, SenderName: nameByID[m.SenderID]})
	}

	return gin.H{
		"id": conv.ID,
		"participants": []participantView{
			{ID: conv.UserLo, Name: nameByID[conv.UserLo]},
			{ID: conv.UserHi, Name: nameByID[conv.UserHi]},
		},
		"tool":            gin.H{"id": tool.ID, "title": tool.Title},
		"messages":        views,
		"created_at":      conv.CreatedAt,
		"last_message_at": conv.LastMessageAt,
	}, nil
}

func appendErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repositories.ErrMessageEmpty):
		return http.StatusBadRequest, "message body is empty"
	case errors.Is(err, repositories.ErrNotParticipant):
		return http.StatusForbidden, "not a conversation participant"
	case errors.Is(err, repositories.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	default:
		return http.StatusInternalServerError, "failed to store message"
	}
}
