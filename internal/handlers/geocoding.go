package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"itinerary-router/internal/geocoding"
)

// HandleAddressSearch handles GET /api/v1/address-search
func (h *Handler) HandleAddressSearch(c *gin.Context) {
	query := c.Query("address")

	if len(query) < 4 {
		c.JSON(http.StatusOK, []geocoding.GeocodingResult{})
		return
	}

	results, err := h.Geocoder.Search(c.Request.Context(), query, 5)
	if err != nil {
		h.logger().Warn("address search failed", "query", query, "err", err)
		c.JSON(http.StatusOK, []geocoding.GeocodingResult{})
		return
	}

	h.logger().Debug("address search", "query", query, "results", len(results))
	c.JSON(http.StatusOK, results)
}
