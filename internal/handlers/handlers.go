package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"itinerary-router/internal/database"
	"itinerary-router/internal/geocoding"
	"itinerary-router/internal/routing"
	"itinerary-router/internal/suggest"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// Handler provides common handler utilities and dependencies
type Handler struct {
	DB        database.DataStore
	Geocoder  geocoding.Geocoder
	Optimizer *routing.Service
	Planner   *suggest.Planner
	Logger    *slog.Logger
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// writeError aborts the request with a JSON error body
func (h *Handler) writeError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(c *gin.Context, message string) {
	h.writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleNotFound handles 404 errors
func (h *Handler) handleNotFound(c *gin.Context, message string) {
	h.writeError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(c *gin.Context, err error) {
	h.logger().Error("internal error", "path", c.FullPath(), "err", err)
	h.writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// currentUser returns the authenticated user id set by the auth middleware
func currentUser(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(c *gin.Context) {
	if err := h.DB.HealthCheck(c.Request.Context()); err != nil {
		h.logger().Warn("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
