package routing

import (
	"fmt"

	"itinerary-router/internal/models"
)

// Reinsert fills the location slots of original, left to right, with the ids
// of optimized. Sentinels stay at their original positions.
func Reinsert(original models.Route, optimized []string) (models.Route, error) {
	slots := 0
	for _, e := range original {
		if !e.IsSentinel() {
			slots++
		}
	}
	if slots != len(optimized) {
		return nil, fmt.Errorf("%w: route has %d location slots, got %d ids", ErrReorderMismatch, slots, len(optimized))
	}

	out := make(models.Route, len(original))
	next := 0
	for i, e := range original {
		if e.IsSentinel() {
			out[i] = e
			continue
		}
		out[i] = models.LocationRef(optimized[next])
		next++
	}
	return out, nil
}
