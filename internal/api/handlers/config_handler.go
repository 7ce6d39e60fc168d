package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/services"
)

// ConfigHandler serves runtime settings.
type ConfigHandler struct {
	settings services.ISettingsService
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(settings services.ISettingsService) *ConfigHandler {
	return &ConfigHandler{settings: settings}
}

// GetPublicConfig returns the publicly accessible settings.
// Handles GET /v1/config
func (h *ConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.settings.GetAllPublic(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to retrieve configuration")
		return
	}
	c.JSON(http.StatusOK, publicConfig)
}

type setConfigRequest struct {
	Value  interface{} `json:"value"`
	Public bool        `json:"public"`
}

// SetConfigValue stores one setting and notifies other instances.
// Handles PUT /v1/admin/config/:key
func (h *ConfigHandler) SetConfigValue(c *gin.Context) {
	var req setConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}
	key := c.Param("key")
	if err := h.settings.SetValue(c.Request.Context(), key, req.Value, req.Public); err != nil {
		respondError(c, err, "Failed to store setting")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value, "public": req.Public})
}
