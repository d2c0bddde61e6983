package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"toolswap-chat/internal/mocks"
	"toolswap-chat/internal/models"
	"toolswap-chat/internal/repositories"
)

type chatFixture struct {
	router   *gin.Engine
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	userRepo *mocks.UserRepositoryMock
	toolRepo *mocks.ToolRepositoryMock
}

func setupChatRouter(userID int) chatFixture {
	gin.SetMode(gin.TestMode)

	f := chatFixture{
		convRepo: new(mocks.ConversationRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		userRepo: new(mocks.UserRepositoryMock),
		toolRepo: new(mocks.ToolRepositoryMock),
	}
	handler := NewChatHandler(f.convRepo, f.msgRepo, f.userRepo, f.toolRepo, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	router.GET("/chat/conversations", handler.ListConversations)
	router.GET("/chat/conversations/:tool_id/:other_user_id", handler.GetOrCreateConversation)
	router.POST("/chat/messages", handler.PostMessage)

	f.router = router
	return f
}

func TestListConversations(t *testing.T) {
	f := setupChatRouter(1)

	now := time.Now().UTC()
	f.convRepo.On("ListForUser", mock.Anything, 1).Return([]models.ConversationSummary{
		{ConversationID: 7, ToolID: 3, OtherUserID: 2, LastMessage: "sure, tomorrow works", LastMessageAt: now, CreatedAt: now},
	}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{2}).Return([]models.User{
		{ID: 2, Name: "Bob"},
	}, nil)
	f.toolRepo.On("BulkTools", mock.Anything, []int{3}).Return([]models.Tool{
		{ID: 3, Title: "Cordless Drill"},
	}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations", nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Conversations []struct {
			ConversationID int    `json:"conversation_id"`
			ToolTitle      string `json:"tool_title"`
			OtherUserName  string `json:"other_user_name"`
			LastMessage    string `json:"last_message"`
		} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, 7, body.Conversations[0].ConversationID)
	assert.Equal(t, "Cordless Drill", body.Conversations[0].ToolTitle)
	assert.Equal(t, "Bob", body.Conversations[0].OtherUserName)
	assert.Equal(t, "sure, tomorrow works", body.Conversations[0].LastMessage)
}

func TestListConversationsRepoError(t *testing.T) {
	f := setupChatRouter(1)
	f.convRepo.On("ListForUser", mock.Anything, 1).Return(nil, errors.New("db down"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetOrCreateConversation(t *testing.T) {
	f := setupChatRouter(1)

	f.toolRepo.On("GetTool", mock.Anything, 3).Return(models.Tool{ID: 3, Title: "Cordless Drill"}, nil)
	f.userRepo.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Name: "Bob"}, nil)
	f.convRepo.On("FindOrCreate", mock.Anything, 3, 1, 2).Return(models.Conversation{
		ID: 7, ToolID: 3, UserLo: 1, UserHi: 2,
	}, nil)
	f.userRepo.On("BulkUsers", mock.Anything, []int{1, 2}).Return([]models.User{
		{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"},
	}, nil)
	f.msgRepo.On("ListForConversation", mock.Anything, 7).Return([]models.Message{
		{ID: 41, ConversationID: 7, SenderID: 2, Body: "sure"},
	}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations/3/2", nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID       int `json:"id"`
		Tool     struct{ Title string } `json:"tool"`
		Messages []struct {
			Body       string `json:"body"`
			SenderName string `json:"sender_name"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 7, body.ID)
	assert.Equal(t, "Cordless Drill", body.Tool.Title)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "Bob", body.Messages[0].SenderName)
	f.convRepo.AssertExpectations(t)
}

func TestGetOrCreateConversationInvalidToolID(t *testing.T) {
	f := setupChatRouter(1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations/drill/2", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrCreateConversationUnknownTool(t *testing.T) {
	f := setupChatRouter(1)
	f.toolRepo.On("GetTool", mock.Anything, 99).Return(nil, repositories.ErrToolNotFound)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations/99/2", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrCreateConversationWithSelf(t *testing.T) {
	f := setupChatRouter(1)
	f.toolRepo.On("GetTool", mock.Anything, 3).Return(models.Tool{ID: 3}, nil)
	f.userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1}, nil)
	f.convRepo.On("FindOrCreate", mock.Anything, 3, 1, 1).Return(nil, repositories.ErrSelfConversation)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/conversations/3/1", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessage(t *testing.T) {
	f := setupChatRouter(1)

	persisted := models.Message{ID: 41, ConversationID: 7, SenderID: 1, Body: "still available?"}
	f.msgRepo.On("Append", mock.Anything, 7, 1, "still available?", (*int)(nil)).Return(persisted, nil)
	f.convRepo.On("GetConversation", mock.Anything, 7).Return(models.Conversation{
		ID: 7, ToolID: 3, UserLo: 1, UserHi: 2,
	}, nil)

	payload, _ := json.Marshal(gin.H{"conversation_id": 7, "message": "still available?"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var msg models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, 41, msg.ID)
	f.msgRepo.AssertExpectations(t)
}

func TestPostMessageMissingBody(t *testing.T) {
	f := setupChatRouter(1)

	payload, _ := json.Marshal(gin.H{"conversation_id": 7})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.msgRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageNotParticipant(t *testing.T) {
	f := setupChatRouter(9)
	f.msgRepo.On("Append", mock.Anything, 7, 9, "let me in", (*int)(nil)).
		Return(nil, repositories.ErrNotParticipant)

	payload, _ := json.Marshal(gin.H{"conversation_id": 7, "message": "let me in"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPostMessageUnknownConversation(t *testing.T) {
	f := setupChatRouter(1)
	f.msgRepo.On("Append", mock.Anything, 99, 1, "hello?", (*int)(nil)).
		Return(nil, repositories.ErrConversationNotFound)

	payload, _ := json.Marshal(gin.H{"conversation_id": 99, "message": "hello?"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
