package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"itinerary-router/internal/models"
	"itinerary-router/internal/suggest"
)

// WaypointInput is a waypoint given either as coordinates or as an address
type WaypointInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

// PlanRequest is the body of POST /api/v1/plan
type PlanRequest struct {
	Text       string          `json:"text"`
	UseNLP     *bool           `json:"use_nlp"`
	Categories []string        `json:"categories"`
	Waypoints  []WaypointInput `json:"waypoints"`
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HandlePlan handles POST /api/v1/plan
func (h *Handler) HandlePlan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, "Invalid request body")
		return
	}
	if len(req.Waypoints) < 2 {
		h.handleValidationError(c, "At least two waypoints are required")
		return
	}

	ctx := c.Request.Context()
	waypoints := make([]models.Coordinates, 0, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		switch {
		case wp.Latitude != nil && wp.Longitude != nil:
			if !validCoordinates(*wp.Latitude, *wp.Longitude) {
				h.handleValidationError(c, fmt.Sprintf("Waypoint %d has invalid coordinates", i))
				return
			}
			waypoints = append(waypoints, models.Coordinates{Lat: *wp.Latitude, Lng: *wp.Longitude})
		case strings.TrimSpace(wp.Address) != "":
			result, err := h.Geocoder.GeocodeWithRetry(ctx, wp.Address, 2)
			if err != nil {
				h.handleError(c, err)
				return
			}
			waypoints = append(waypoints, result.Coords)
		default:
			h.handleValidationError(c, fmt.Sprintf("Waypoint %d needs latitude and longitude or an address", i))
			return
		}
	}

	result, err := h.Planner.PlanSuggestions(ctx, suggest.PlanRequest{
		Text:       req.Text,
		UseNLP:     req.UseNLP,
		Categories: req.Categories,
		Waypoints:  waypoints,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.logger().Info("plan served",
		"user", currentUser(c),
		"waypoints", len(waypoints),
		"suggestions", len(result.Suggestions))
	c.JSON(http.StatusOK, result)
}
