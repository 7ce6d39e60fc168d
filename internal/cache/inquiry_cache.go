package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hama/estate/internal/models"
)

const inquiryViewKeyPrefix = "inquiry_view:"

// InquiryCache stores the last good inquiry view of each agent in Redis.
type InquiryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewInquiryCache returns a cache whose entries expire after ttl.
func NewInquiryCache(rdb *redis.Client, ttl time.Duration) *InquiryCache {
	return &InquiryCache{rdb: rdb, ttl: ttl}
}

func inquiryViewKey(agentID string) string {
	return inquiryViewKeyPrefix + agentID
}

// Get returns nil, nil when nothing is cached for agentID.
func (c *InquiryCache) Get(ctx context.Context, agentID string) (*models.InquiryView, error) {
	raw, err := c.rdb.Get(ctx, inquiryViewKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inquiry view for %s: %w", agentID, err)
	}
	var view models.InquiryView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("corrupt inquiry view for %s: %w", agentID, err)
	}
	return &view, nil
}

func (c *InquiryCache) Put(ctx context.Context, view *models.InquiryView) error {
	if view == nil || view.AgentID == "" {
		return fmt.Errorf("inquiry view must name an agent")
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode inquiry view for %s: %w", view.AgentID, err)
	}
	if err := c.rdb.Set(ctx, inquiryViewKey(view.AgentID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache inquiry view for %s: %w", view.AgentID, err)
	}
	return nil
}
