package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterMiddleware_Sweep(t *testing.T) {
	rm := &RateLimiterMiddleware{clients: map[string]*clientLimiter{}}
	now := time.Now()
	rm.clients["idle"] = &clientLimiter{lastSeen: now.Add(-limiterIdleTTL - time.Second)}
	rm.clients["busy"] = &clientLimiter{lastSeen: now.Add(-time.Minute)}

	assert.Equal(t, 1, rm.sweep(now))
	assert.Contains(t, rm.clients, "busy")
	assert.NotContains(t, rm.clients, "idle")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}
