package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"hama/estate/internal/api/handlers"
	"hama/estate/internal/api/middleware"
	"hama/estate/internal/config"
	"hama/estate/internal/models"
	"hama/estate/internal/services"
)

// Services groups what the HTTP layer depends on.
type Services struct {
	Settings      services.ISettingsService
	Inquiries     services.IInquiryService
	Presence      services.IPresenceService
	Conversations services.IConversationService
	Notifier      services.InquiryNotifier
	// Mailbox is set when emails are captured instead of sent.
	Mailbox       Mailbox
}

// Mailbox reads back captured emails.
type Mailbox interface {
	Take(ctx context.Context, addr, kind string) (map[string]interface{}, error)
}

const (
	mailboxPolls    = 10
	mailboxInterval = 200 * time.Millisecond
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.New()

	// Apply global middleware first (order matters)
	r.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery(), middleware.Metrics())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigins))

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, svc.Settings)
	authenticate := middleware.AuthMiddleware(cfg.JwtSecret)

	configHandler := handlers.NewConfigHandler(svc.Settings)
	inquiryHandler := handlers.NewInquiryHandler(svc.Inquiries)
	presenceHandler := handlers.NewPresenceHandler(svc.Presence)
	conversationHandler := handlers.NewConversationHandler(svc.Conversations)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// Public Routes
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/config", rateLimiter.Limit(), configHandler.GetPublicConfig)

		// Authenticated Routes. The limiter runs after auth so signed-in users
		// get their own bucket.
		authRequired := v1.Group("/")
		authRequired.Use(authenticate, rateLimiter.Limit())
		{
			authRequired.PUT("/presence", presenceHandler.MarkOnline)
			authRequired.DELETE("/presence", presenceHandler.MarkOffline)
			authRequired.GET("/presence/session", presenceHandler.Session)
			authRequired.GET("/presence/:id", presenceHandler.GetPresence)

			authRequired.POST("/inquiries", inquiryHandler.Create)

			authRequired.GET("/conversations", conversationHandler.List)
			authRequired.POST("/conversations", conversationHandler.Start)
			authRequired.GET("/conversations/:id/messages", conversationHandler.ListMessages)
			authRequired.POST("/conversations/:id/messages", conversationHandler.SendMessage)
			authRequired.POST("/conversations/:id/read", conversationHandler.MarkRead)
		}

		agentRequired := v1.Group("/agent")
		agentRequired.Use(authenticate, middleware.RequireRole(models.RoleAgent), rateLimiter.Limit())
		{
			agentRequired.GET("/inquiries", inquiryHandler.ListMine)
			agentRequired.PATCH("/inquiries/:id", inquiryHandler.UpdateStatus)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(authenticate, middleware.AdminMiddleware(), rateLimiter.Limit())
		{
			adminRequired.GET("/agents/:id/inquiries", inquiryHandler.ListForAgent)
			adminRequired.PUT("/config/:key", configHandler.SetConfigValue)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service API used by operators
// and test harnesses. It is never exposed publicly.
func SetupServiceRouter(svc Services, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info().Msg("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn().Msg("shutdown already signaled")
			}

		case "syncInquiry":
			var args []string // ["conversationId"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [conversationId]"})
				return
			}
			if err := svc.Inquiries.Sync(c.Request.Context(), args[0]); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true})

		case "reloadSettings":
			if err := svc.Settings.Load(c.Request.Context()); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true})

		case "sendTestNotice":
			var args []string // ["email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 || args[0] == "" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [email]"})
				return
			}
			if svc.Notifier == nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Notifications are disabled"})
				return
			}
			svc.Notifier.NotifyNewInquiry(c.Request.Context(), models.InquiryNotice{
				InquiryID:     "test",
				AgentEmail:    args[0],
				PropertyTitle: "Test Property",
				ClientName:    "Test Client",
				Message:       "This is a test inquiry.",
			})
			c.JSON(http.StatusOK, gin.H{"success": true})

		case "getTestEmail":
			var args []string // ["kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			if svc.Mailbox == nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Email capture is disabled"})
				return
			}
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			// The email may still be in the queue, so poll briefly.
		poll:
			for i := 0; i < mailboxPolls; i++ {
				data, err := svc.Mailbox.Take(ctx, args[1], args[0])
				if err != nil {
					_ = c.Error(err)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to read captured email"})
					return
				}
				if data != nil {
					c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
					return
				}
				select {
				case <-ctx.Done():
					break poll
				case <-time.After(mailboxInterval):
				}
			}
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for %s (%s)", args[1], args[0])})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
