package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleGetPlace handles GET /api/v1/places/:id
func (h *Handler) HandleGetPlace(c *gin.Context) {
	loc, err := h.DB.Locations().GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}
