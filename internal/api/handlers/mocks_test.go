package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"hama/estate/internal/models"
)

// --- Mocks ---

// MockInquiryService
type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) Aggregate(ctx context.Context, agentID string) ([]models.Inquiry, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Inquiry), args.Error(1)
}
func (m *MockInquiryService) ListForAgent(ctx context.Context, agentID string) (*models.InquiryView, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InquiryView), args.Error(1)
}
func (m *MockInquiryService) Sync(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}
func (m *MockInquiryService) CreateInquiry(ctx context.Context, propertyID, clientID, message string) (*models.Inquiry, error) {
	args := m.Called(ctx, propertyID, clientID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}
func (m *MockInquiryService) UpdateStatus(ctx context.Context, inquiryID, agentID string, status models.InquiryStatus) (*models.Inquiry, error) {
	args := m.Called(ctx, inquiryID, agentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

// MockPresenceService
type MockPresenceService struct {
	mock.Mock
}

func (m *MockPresenceService) MarkOnline(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}
func (m *MockPresenceService) MarkOffline(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}
func (m *MockPresenceService) IsOnline(ctx context.Context, userID string, now time.Time) bool {
	args := m.Called(ctx, userID, now)
	return args.Bool(0)
}
func (m *MockPresenceService) Get(ctx context.Context, userID string, now time.Time) models.Presence {
	args := m.Called(ctx, userID, now)
	return args.Get(0).(models.Presence)
}
func (m *MockPresenceService) Heartbeat(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

// MockConversationService
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) StartConversation(ctx context.Context, clientID, propertyID, text string) (*models.Conversation, *models.Message, error) {
	args := m.Called(ctx, clientID, propertyID, text)
	var conv *models.Conversation
	var msg *models.Message
	if v := args.Get(0); v != nil {
		conv = v.(*models.Conversation)
	}
	if v := args.Get(1); v != nil {
		msg = v.(*models.Message)
	}
	return conv, msg, args.Error(2)
}
func (m *MockConversationService) SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}
func (m *MockConversationService) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}
func (m *MockConversationService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}
func (m *MockConversationService) ListMessages(ctx context.Context, conversationID, userID string, limit int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
func (m *MockConversationService) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

// MockSettingsService
type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}
func (m *MockSettingsService) Get(ctx context.Context, key string) (interface{}, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}
func (m *MockSettingsService) GetInt(ctx context.Context, key string, defaultValue int) int {
	return defaultValue
}
func (m *MockSettingsService) GetString(ctx context.Context, key string, defaultValue string) string {
	return defaultValue
}
func (m *MockSettingsService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	return defaultValue
}
func (m *MockSettingsService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	return defaultValue
}
func (m *MockSettingsService) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockSettingsService) SubscribeToChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockSettingsService) SetValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	return m.Called(ctx, key, value, isPublic).Error(0)
}
func (m *MockSettingsService) GetAPIEndpointConfig(ctx context.Context, endpoint string) *models.APIEndpointConfig {
	args := m.Called(ctx, endpoint)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.APIEndpointConfig)
}
