package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"toolswap-chat/internal/models"
	"toolswap-chat/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindOrCreate(ctx context.Context, toolID int, userA int, userB int) (models.Conversation, error) {
	args := m.Called(ctx, toolID, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, conversationID int, senderID int, body string, toolID *int) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, body, toolID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ToolRepositoryMock struct {
	mock.Mock
}

func (m *ToolRepositoryMock) GetTool(ctx context.Context, toolID int) (models.Tool, error) {
	args := m.Called(ctx, toolID)
	var tool models.Tool
	if val := args.Get(0); val != nil {
		tool = val.(models.Tool)
	}
	return tool, args.Error(1)
}

func (m *ToolRepositoryMock) BulkTools(ctx context.Context, ids []int) ([]models.Tool, error) {
	args := m.Called(ctx, ids)
	var tools []models.Tool
	if val := args.Get(0); val != nil {
		tools = val.([]models.Tool)
	}
	return tools, args.Error(1)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ToolRepository = (*ToolRepositoryMock)(nil)
