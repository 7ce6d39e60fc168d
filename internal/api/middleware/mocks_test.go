package middleware_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"hama/estate/internal/models"
)

// MockSettingsService implements services.ISettingsService
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
