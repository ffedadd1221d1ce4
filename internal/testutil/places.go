package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"itinerary-router/internal/models"
)

// PlaceQuery records one nearby-place lookup
type PlaceQuery struct {
	Point     models.Coordinates
	PlaceType string
	Radius    int
	Limit     int
}

// FakePlaceLookup returns scripted places keyed by place type.
// Every point returns the same places unless PerPoint is set, in which case
// ids are suffixed with the rounded point so each sample yields distinct hits.
type FakePlaceLookup struct {
	PerPoint bool
	// IgnoreLimit returns every registered place regardless of limit
	IgnoreLimit bool
	// Delay, when set, holds each lookup for the returned duration
	Delay func(point models.Coordinates, placeType string) time.Duration

	mu       sync.Mutex
	byType   map[string][]models.Location
	failures map[string]error
	queries  []PlaceQuery
}

func NewFakePlaceLookup() *FakePlaceLookup {
	return &FakePlaceLookup{
		byType:   make(map[string][]models.Location),
		failures: make(map[string]error),
	}
}

// AddPlaces registers places returned for a place type
func (f *FakePlaceLookup) AddPlaces(placeType string, locs ...models.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byType[placeType] = append(f.byType[placeType], locs...)
}

// FailType makes every lookup for placeType fail
func (f *FakePlaceLookup) FailType(placeType string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[placeType] = err
}

// Nearby returns the registered places for placeType, truncated to limit
// unless IgnoreLimit is set
func (f *FakePlaceLookup) Nearby(ctx context.Context, point models.Coordinates, placeType string, radius, limit int) ([]models.Location, error) {
	if f.Delay != nil {
		if err := sleep(ctx, f.Delay(point, placeType)); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, PlaceQuery{Point: point, PlaceType: placeType, Radius: radius, Limit: limit})
	if err, ok := f.failures[placeType]; ok {
		return nil, err
	}

	src := f.byType[placeType]
	out := make([]models.Location, 0, len(src))
	for _, loc := range src {
		if f.PerPoint {
			loc.ID = fmt.Sprintf("%s@%.5f,%.5f", loc.ID, point.Lat, point.Lng)
		}
		out = append(out, loc)
	}
	if !f.IgnoreLimit && limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Queries returns recorded lookups sorted by type then coordinates
func (f *FakePlaceLookup) Queries() []PlaceQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]PlaceQuery(nil), f.queries...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlaceType != out[j].PlaceType {
			return out[i].PlaceType < out[j].PlaceType
		}
		if out[i].Point.Lat != out[j].Point.Lat {
			return out[i].Point.Lat < out[j].Point.Lat
		}
		return out[i].Point.Lng < out[j].Point.Lng
	})
	return out
}
