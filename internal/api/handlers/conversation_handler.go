package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/api/middleware"
	"hama/estate/internal/services"
)

const maxMessagePage = 200

// ConversationHandler handles client/agent messaging.
type ConversationHandler struct {
	conversations services.IConversationService
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversations services.IConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List handles GET /v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.conversations.ListConversations(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		respondError(c, err, "Failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

type startConversationRequest struct {
	PropertyID string `json:"propertyId" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

// Start handles POST /v1/conversations. It opens (or reuses) the caller's
// conversation with the property's agent and sends the first message.
func (h *ConversationHandler) Start(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	conv, msg, err := h.conversations.StartConversation(c.Request.Context(), middleware.UserIDFrom(c), req.PropertyID, req.Text)
	if err != nil {
		respondError(c, err, "Failed to start conversation")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "message": msg})
}

// ListMessages handles GET /v1/conversations/:id/messages?limit=N
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	limit := int64(services.DefaultMessagePage)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxMessagePage {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxMessagePage)})
			return
		}
		limit = n
	}
	msgs, err := h.conversations.ListMessages(c.Request.Context(), c.Param("id"), middleware.UserIDFrom(c), limit)
	if err != nil {
		respondError(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage handles POST /v1/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	msg, err := h.conversations.SendMessage(c.Request.Context(), c.Param("id"), middleware.UserIDFrom(c), req.Text)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /v1/conversations/:id/read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	n, err := h.conversations.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserIDFrom(c))
	if err != nil {
		respondError(c, err, "Failed to mark messages read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
