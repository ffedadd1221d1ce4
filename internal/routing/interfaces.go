package routing

import (
	"context"
	"errors"
	"fmt"

	"itinerary-router/internal/distance"
	"itinerary-router/internal/models"
)

// MatrixBuilder produces a cost matrix for an ordered list of points
type MatrixBuilder interface {
	Build(ctx context.Context, points []models.Coordinates) (models.CostMatrix, distance.BuildReport)
}

var (
	// ErrInsufficientPoints is returned when fewer than two locations are given
	ErrInsufficientPoints = errors.New("at least two locations are required")
	// ErrInvalidMatrix is returned for malformed matrices or out-of-range anchors
	ErrInvalidMatrix = errors.New("invalid cost matrix")
	// ErrOptimizationFailed is returned when construction cannot place every node
	ErrOptimizationFailed = errors.New("optimization failed")
	// ErrInvalidFixedPoints is returned when a fixed start or end is not part of the route
	ErrInvalidFixedPoints = errors.New("fixed start and end must be part of the route")
	// ErrReorderMismatch is returned when the optimized order does not fit the route
	ErrReorderMismatch = errors.New("optimized order does not match route locations")
)

// ErrPlaceNotFound is returned when a route references an unknown location
type ErrPlaceNotFound struct {
	ID string
}

func (e *ErrPlaceNotFound) Error() string {
	return fmt.Sprintf("place not found: %s", e.ID)
}
