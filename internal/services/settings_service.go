package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hama/estate/internal/config"
	"hama/estate/internal/db"
	"hama/estate/internal/models"
)

// ISettingsService defines the interface for runtime settings.
type ISettingsService interface {
	GetAllPublic(ctx context.Context) (map[string]interface{}, error)
	Get(ctx context.Context, key string) (interface{}, error)
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetString(ctx context.Context, key string, defaultValue string) string
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetValue(ctx context.Context, key string, value interface{}, isPublic bool) error
	GetAPIEndpointConfig(ctx context.Context, endpoint string) *models.APIEndpointConfig
}

const (
	settingsCollection  = "configuration"
	apiConfigCollection = "api_endpoints_config"
	settingsChannel     = "config_updates"
)

// settingsService implements ISettingsService.
type settingsService struct {
	store    db.Store
	cfg      *config.Config
	rdb      *redis.Client
	cache    map[string]interface{}
	apiCache map[string]*models.APIEndpointConfig
	mutex    sync.RWMutex
}

// NewSettingsService creates a settings service and loads the current
// settings. rdb may be nil, in which case changes made by other instances are
// only picked up on the next Load.
func NewSettingsService(ctx context.Context, store db.Store, cfg *config.Config, rdb *redis.Client) ISettingsService {
	s := &settingsService{
		store:    store,
		cfg:      cfg,
		rdb:      rdb,
		cache:    make(map[string]interface{}),
		apiCache: make(map[string]*models.APIEndpointConfig),
	}
	if err := s.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load settings, using defaults from environment")
	}
	return s
}

// Load fetches all settings and endpoint configs into the in-memory cache.
func (s *settingsService) Load(ctx context.Context) error {
	var entries []models.Setting
	if err := s.store.QueryWhere(ctx, settingsCollection, db.All(), &entries); err != nil {
		return fmt.Errorf("failed to query settings: %w", err)
	}
	newCache := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		newCache[e.Key] = e.Value
	}

	newAPICache := make(map[string]*models.APIEndpointConfig)
	var endpoints []models.APIEndpointConfig
	if err := s.store.QueryWhere(ctx, apiConfigCollection, db.All(), &endpoints); err != nil {
		log.Warn().Err(err).Msg("failed to query endpoint configs")
	} else {
		for i := range endpoints {
			newAPICache[endpoints[i].Endpoint] = &endpoints[i]
		}
	}

	s.mutex.Lock()
	s.cache = newCache
	s.apiCache = newAPICache
	s.mutex.Unlock()

	log.Info().Int("settings", len(newCache)).Int("endpoints", len(newAPICache)).Msg("settings loaded")
	return nil
}

// GetAllPublic returns the settings marked public, plus the app name.
func (s *settingsService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	var entries []models.Setting
	if err := s.store.QueryWhere(ctx, settingsCollection, db.Where("public", db.OpEqual, true), &entries); err != nil {
		return nil, fmt.Errorf("failed to query public settings: %w", err)
	}
	public := make(map[string]interface{}, len(entries)+1)
	for _, e := range entries {
		public[e.Key] = e.Value
	}
	if _, exists := public["APP_NAME"]; !exists {
		public["APP_NAME"] = s.cfg.AppName
	}
	return public, nil
}

// Get returns a cached setting, falling back to the known environment defaults.
func (s *settingsService) Get(ctx context.Context, key string) (interface{}, error) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()
	if exists {
		return val, nil
	}

	switch key {
	case "APP_NAME":
		return s.cfg.AppName, nil
	case "INQUIRY_TIMEOUT_SECONDS":
		return int(s.cfg.InquiryTimeout / time.Second), nil
	case "PRESENCE_TIMEOUT_SECONDS":
		return int(s.cfg.PresenceTimeout / time.Second), nil
	case "INQUIRY_CACHE_TTL_SECONDS":
		return int(s.cfg.InquiryCacheTTL / time.Second), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSettingNotFound, key)
}

func (s *settingsService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if strVal, ok := val.(string); ok {
		return strVal
	}
	log.Warn().Str("key", key).Msgf("setting is %T, not a string; using default", val)
	return defaultValue
}

func (s *settingsService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	// Stored numbers come back as int32, int64 or float64.
	switch v := val.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	log.Warn().Str("key", key).Msgf("setting is %T, not an integer; using default", val)
	return defaultValue
}

func (s *settingsService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if boolVal, ok := val.(bool); ok {
		return boolVal
	}
	log.Warn().Str("key", key).Msgf("setting is %T, not a boolean; using default", val)
	return defaultValue
}

// GetDuration reads a setting stored as a number of seconds.
func (s *settingsService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	seconds := s.GetInt(ctx, key, -1)
	if seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

// SubscribeToChanges reloads the settings whenever another instance
// publishes on the update channel. Blocks until ctx is done.
func (s *settingsService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Info().Msg("Redis not configured, settings changes will not be propagated")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, settingsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", settingsChannel, err)
	}
	ch := pubsub.Channel()
	log.Info().Str("channel", settingsChannel).Msg("subscribed to settings updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			log.Info().Str("key", msg.Payload).Msg("settings update received")
			if err := s.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("failed to reload settings")
			}
		}
	}
}

// SetValue upserts a setting and notifies the other instances.
func (s *settingsService) SetValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	err := s.store.SetDoc(ctx, settingsCollection, key, db.Fields{"value": value, "public": isPublic}, false)
	if err != nil {
		return fmt.Errorf("failed to store setting '%s': %w", key, err)
	}

	s.mutex.Lock()
	s.cache[key] = value
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, settingsChannel, key).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to publish settings update")
		}
	}
	return nil
}

// GetAPIEndpointConfig returns the rate limit overrides for a route, or nil.
func (s *settingsService) GetAPIEndpointConfig(ctx context.Context, endpoint string) *models.APIEndpointConfig {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.apiCache[endpoint]
}
