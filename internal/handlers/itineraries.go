package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"itinerary-router/internal/models"
)

// ItineraryListResponse represents the list response
type ItineraryListResponse struct {
	Itineraries []models.Itinerary `json:"itineraries"`
	Total       int                `json:"total"`
}

// ItineraryRequest is the body for creating or updating an itinerary
type ItineraryRequest struct {
	Name          string              `json:"name"`
	Route         models.Route        `json:"route"`
	Suggestions   []string            `json:"suggestions"`
	StartLocation *models.Coordinates `json:"start_location"`
	EndLocation   *models.Coordinates `json:"end_location"`
}

func (r *ItineraryRequest) validate() string {
	if strings.TrimSpace(r.Name) == "" {
		return "Name is required"
	}
	if len(r.Route) == 0 {
		return "Route must not be empty"
	}
	for _, e := range r.Route {
		if !e.IsSentinel() && e.Value == "" {
			return "Route entries must not be empty"
		}
	}
	for _, c := range []*models.Coordinates{r.StartLocation, r.EndLocation} {
		if c != nil && !validCoordinates(c.Lat, c.Lng) {
			return "Invalid start or end location"
		}
	}
	return ""
}

func (h *Handler) itineraryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.handleValidationError(c, "Invalid itinerary ID")
		return 0, false
	}
	return id, true
}

// HandleListItineraries handles GET /api/v1/itineraries
func (h *Handler) HandleListItineraries(c *gin.Context) {
	itineraries, err := h.DB.Itineraries().List(c.Request.Context(), currentUser(c))
	if err != nil {
		h.handleInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, ItineraryListResponse{
		Itineraries: itineraries,
		Total:       len(itineraries),
	})
}

// HandleGetItinerary handles GET /api/v1/itineraries/:id
func (h *Handler) HandleGetItinerary(c *gin.Context) {
	id, ok := h.itineraryID(c)
	if !ok {
		return
	}

	it, err := h.DB.Itineraries().GetByID(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// HandleCreateItinerary handles POST /api/v1/itineraries
func (h *Handler) HandleCreateItinerary(c *gin.Context) {
	var req ItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.handleValidationError(c, msg)
		return
	}

	created, err := h.DB.Itineraries().Create(c.Request.Context(), &models.Itinerary{
		UserID:        currentUser(c),
		Name:          strings.TrimSpace(req.Name),
		Route:         req.Route,
		Suggestions:   req.Suggestions,
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
	})
	if err != nil {
		h.handleInternalError(c, err)
		return
	}

	h.logger().Info("itinerary created", "id", created.ID, "user", created.UserID, "entries", len(created.Route))
	c.JSON(http.StatusCreated, created)
}

// HandleUpdateItinerary handles PUT /api/v1/itineraries/:id
func (h *Handler) HandleUpdateItinerary(c *gin.Context) {
	id, ok := h.itineraryID(c)
	if !ok {
		return
	}

	var req ItineraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.handleValidationError(c, msg)
		return
	}

	ctx := c.Request.Context()
	existing, err := h.DB.Itineraries().GetByID(ctx, currentUser(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Route = req.Route
	existing.Suggestions = req.Suggestions
	existing.StartLocation = req.StartLocation
	existing.EndLocation = req.EndLocation

	updated, err := h.DB.Itineraries().Update(ctx, existing)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleDeleteItinerary handles DELETE /api/v1/itineraries/:id
func (h *Handler) HandleDeleteItinerary(c *gin.Context) {
	id, ok := h.itineraryID(c)
	if !ok {
		return
	}

	if err := h.DB.Itineraries().Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleOptimizeItinerary handles POST /api/v1/itineraries/:id/optimize-route.
// The stored route is reordered and saved.
func (h *Handler) HandleOptimizeItinerary(c *gin.Context) {
	id, ok := h.itineraryID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	it, err := h.DB.Itineraries().GetByID(ctx, currentUser(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	optimized, err := h.Optimizer.OptimizeRoute(ctx, it.Route)
	if err != nil {
		h.handleError(c, err)
		return
	}

	it.Route = optimized
	updated, err := h.DB.Itineraries().Update(ctx, it)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.logger().Info("itinerary route optimized", "id", id, "entries", len(optimized))
	c.JSON(http.StatusOK, updated)
}
