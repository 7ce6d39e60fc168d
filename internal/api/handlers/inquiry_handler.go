package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/api/middleware"
	"hama/estate/internal/models"
	"hama/estate/internal/services"
)

// InquiryHandler handles the agent inquiry dashboard and manual inquiries.
type InquiryHandler struct {
	inquiries services.IInquiryService
}

// NewInquiryHandler creates a new InquiryHandler.
func NewInquiryHandler(inquiries services.IInquiryService) *InquiryHandler {
	return &InquiryHandler{inquiries: inquiries}
}

// ListMine handles GET /v1/agent/inquiries
func (h *InquiryHandler) ListMine(c *gin.Context) {
	h.list(c, middleware.UserIDFrom(c))
}

// ListForAgent handles GET /v1/admin/agents/:id/inquiries
func (h *InquiryHandler) ListForAgent(c *gin.Context) {
	h.list(c, c.Param("id"))
}

func (h *InquiryHandler) list(c *gin.Context, agentID string) {
	view, err := h.inquiries.ListForAgent(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, err, "Failed to load inquiries")
		return
	}
	if view.Stale {
		c.Header("Warning", `110 - "stale inquiry list"`)
	}
	c.JSON(http.StatusOK, view)
}

type createInquiryRequest struct {
	PropertyID string `json:"propertyId" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// Create handles POST /v1/inquiries
func (h *InquiryHandler) Create(c *gin.Context) {
	var req createInquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	inq, err := h.inquiries.CreateInquiry(c.Request.Context(), req.PropertyID, middleware.UserIDFrom(c), req.Message)
	if err != nil {
		respondError(c, err, "Failed to create inquiry")
		return
	}
	c.JSON(http.StatusCreated, inq)
}

type updateStatusRequest struct {
	Status models.InquiryStatus `json:"status" binding:"required"`
}

// UpdateStatus handles PATCH /v1/agent/inquiries/:id
func (h *InquiryHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	inq, err := h.inquiries.UpdateStatus(c.Request.Context(), c.Param("id"), middleware.UserIDFrom(c), req.Status)
	if err != nil {
		respondError(c, err, "Failed to update inquiry")
		return
	}
	c.JSON(http.StatusOK, inq)
}
