package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// FixedEndpoints pins the first and last stop of an optimized order
type FixedEndpoints struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OptimizeRequest is the body of POST /api/v1/itineraries/optimize
type OptimizeRequest struct {
	Route []string        `json:"route"`
	Fixed *FixedEndpoints `json:"fixed"`
}

// OptimizeResponse is the optimized visiting order
type OptimizeResponse struct {
	OptimizedRoute  []string `json:"optimized_route"`
	TotalCostMeters int64    `json:"total_cost_meters"`
	ClosedLoop      bool     `json:"closed_loop"`
}

// HandleOptimize handles POST /api/v1/itineraries/optimize.
// Without fixed endpoints the order is a closed loop from the first id.
func (h *Handler) HandleOptimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, "Invalid request body")
		return
	}
	if len(req.Route) < 2 {
		h.handleValidationError(c, "At least two places are required")
		return
	}
	for _, id := range req.Route {
		if strings.TrimSpace(id) == "" {
			h.handleValidationError(c, "Place ids must not be empty")
			return
		}
	}

	start, end := req.Route[0], req.Route[0]
	if req.Fixed != nil {
		start, end = req.Fixed.Start, req.Fixed.End
	}

	ordered, tour, err := h.Optimizer.OptimizeFixedEndpoints(c.Request.Context(), req.Route, start, end)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, OptimizeResponse{
		OptimizedRoute:  ordered,
		TotalCostMeters: tour.Cost,
		ClosedLoop:      tour.Closed,
	})
}
