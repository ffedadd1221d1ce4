package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"itinerary-router/internal/database"
	"itinerary-router/internal/geocoding"
	"itinerary-router/internal/routing"
	"itinerary-router/internal/suggest"
)

// handleError maps domain errors to HTTP responses
func (h *Handler) handleError(c *gin.Context, err error) {
	var notFound *routing.ErrPlaceNotFound
	var geoErr *geocoding.ErrGeocodingFailed

	switch {
	case errors.As(err, &notFound):
		h.writeError(c, http.StatusBadRequest, "PLACE_NOT_FOUND", err.Error(), gin.H{"id": notFound.ID})
	case errors.Is(err, routing.ErrInsufficientPoints),
		errors.Is(err, routing.ErrInvalidFixedPoints),
		errors.Is(err, suggest.ErrInsufficientWaypoints),
		errors.Is(err, suggest.ErrInvalidSampleCount):
		h.handleValidationError(c, err.Error())
	case errors.Is(err, database.ErrNotFound):
		h.handleNotFound(c, "Resource not found")
	case errors.Is(err, routing.ErrOptimizationFailed):
		h.logger().Error("optimization failed", "path", c.FullPath(), "err", err)
		h.writeError(c, http.StatusInternalServerError, "OPTIMIZATION_FAILED", err.Error(), nil)
	case errors.As(err, &geoErr):
		h.writeError(c, http.StatusUnprocessableEntity, "GEOCODING_FAILED", geoErr.Error(), gin.H{"address": geoErr.Address})
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(c, http.StatusGatewayTimeout, "TIMEOUT", "The request took too long to complete", nil)
	default:
		h.handleInternalError(c, err)
	}
}
