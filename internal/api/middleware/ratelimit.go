package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"hama/estate/internal/config"
	"hama/estate/internal/services"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTTL         = 30 * time.Minute
)

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints. Anonymous
// clients are held to the soft limit; authenticated users only to the hard one.
type RateLimiterMiddleware struct {
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	cfg      *config.Config            // For defaults
	settings services.ISettingsService // For endpoint specific limits
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware. settings may be nil.
func NewRateLimiterMiddleware(cfg *config.Config, settings services.ISettingsService) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients:  make(map[string]*clientLimiter),
		cfg:      cfg,
		settings: settings,
	}
	go rm.cleanupClients()
	return rm
}

// getClientIdentifier keys authenticated users by id and everyone else by IP.
func getClientIdentifier(c *gin.Context) (string, bool) {
	if uid := UserIDFrom(c); uid != "" {
		return "user|" + uid, true
	}
	return "ip|" + c.ClientIP(), false
}

// getClientLimiter retrieves or creates the rate limiters for a given client
// identifier on one endpoint.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, softRate, softBurst int, hardRate, hardBurst int) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(softRate), softBurst),
			hardLimiter: rate.NewLimiter(rate.Limit(hardRate), hardBurst),
		}
		rm.clients[identifier] = limiter
		log.Debug().Str("client", identifier).Msg("created rate limiter entry")
	}
	limiter.lastSeen = time.Now()
	return limiter
}

func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for now := range ticker.C {
		if n := rm.sweep(now); n > 0 {
			log.Debug().Int("removed", n).Msg("rate limiter cleanup")
		}
	}
}

// sweep drops clients idle for longer than limiterIdleTTL as of now.
func (rm *RateLimiterMiddleware) sweep(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if now.Sub(client.lastSeen) > limiterIdleTTL {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey, authenticated := getClientIdentifier(c)
		endpoint := c.FullPath()

		softRate := rm.cfg.RateLimitSoftRefillRate
		softBurst := rm.cfg.RateLimitSoftBucketSize
		hardRate := rm.cfg.RateLimitHardRefillRate
		hardBurst := rm.cfg.RateLimitHardBucketSize

		if rm.settings != nil {
			if apiCfg := rm.settings.GetAPIEndpointConfig(c.Request.Context(), endpoint); apiCfg != nil {
				if apiCfg.RateLimitSoft != nil {
					softRate = apiCfg.RateLimitSoft.TokenRefillRate
					softBurst = apiCfg.RateLimitSoft.BucketSize
				}
				if apiCfg.RateLimitHard != nil {
					hardRate = apiCfg.RateLimitHard.TokenRefillRate
					hardBurst = apiCfg.RateLimitHard.BucketSize
				}
			}
		}

		limiter := rm.getClientLimiter(clientKey+"|"+endpoint, softRate, softBurst, hardRate, hardBurst)

		if !limiter.hardLimiter.Allow() {
			log.Warn().Str("client", clientKey).Str("endpoint", endpoint).Msg("hard rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		if !authenticated && !limiter.softLimiter.Allow() {
			log.Info().Str("client", clientKey).Str("endpoint", endpoint).Msg("soft rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded, sign in for a higher limit"})
			return
		}

		c.Next()
	}
}
