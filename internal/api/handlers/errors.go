package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hama/estate/internal/services"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrInquiryNotFound),
		errors.Is(err, services.ErrPropertyNotFound),
		errors.Is(err, services.ErrSettingNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrNotInquiryAgent):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrSelfConversation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPropertyOwnerUnknown):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error. Unexpected errors are attached to
// the gin context for the access log and hidden behind fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
