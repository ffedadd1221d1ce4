package places

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"itinerary-router/internal/metrics"
	"itinerary-router/internal/models"
)

// CachedLookup memoizes Nearby results in memory for a fixed TTL.
// Failures are never cached.
type CachedLookup struct {
	next  LookupService
	cache *cache.Cache
}

// NewCachedLookup wraps next with a TTL cache
func NewCachedLookup(next LookupService, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(point models.Coordinates, placeType string, radius, limit int) string {
	return fmt.Sprintf("%s|%.5f,%.5f|%d|%d", placeType,
		models.RoundCoordinate(point.Lat), models.RoundCoordinate(point.Lng), radius, limit)
}

func (c *CachedLookup) Nearby(ctx context.Context, point models.Coordinates, placeType string, radius, limit int) ([]models.Location, error) {
	key := cacheKey(point, placeType, radius, limit)
	if cached, found := c.cache.Get(key); found {
		metrics.ObservePlaceCache(true)
		return append([]models.Location(nil), cached.([]models.Location)...), nil
	}
	metrics.ObservePlaceCache(false)

	locs, err := c.next.Nearby(ctx, point, placeType, radius, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]models.Location(nil), locs...), cache.DefaultExpiration)
	return locs, nil
}

// size reports the number of cached entries, expired ones included
func (c *CachedLookup) size() int {
	return c.cache.ItemCount()
}
