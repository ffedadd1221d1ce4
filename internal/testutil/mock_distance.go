package testutil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"itinerary-router/internal/models"
)

// ErrInjected is returned by fakes for pairs configured to fail
var ErrInjected = errors.New("injected failure")

// RouteCall tracks a call to the routing service
type RouteCall struct {
	Origin models.Coordinates
	Dest   models.Coordinates
}

// FakeRoutingService is a deterministic routing service for tests.
// Costs are scaled Euclidean distances; geometries are straight lines.
// It is safe for concurrent use.
type FakeRoutingService struct {
	ScaleFactor   float64
	GeometryPoint int

	// Delay, when set, holds each call for the returned duration
	Delay func(origin, dest models.Coordinates) time.Duration

	mu        sync.Mutex
	overrides map[string]int64
	failures  map[string]error
	calls     []RouteCall
}

func NewFakeRoutingService() *FakeRoutingService {
	return &FakeRoutingService{
		ScaleFactor:   111000, // 1 degree ≈ 111km in meters
		GeometryPoint: 20,
		overrides:     make(map[string]int64),
		failures:      make(map[string]error),
	}
}

func pairKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f",
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lng))
}

// SetCost sets a custom cost for a specific origin-destination pair
func (f *FakeRoutingService) SetCost(origin, dest models.Coordinates, meters int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[pairKey(origin, dest)] = meters
}

// FailPair makes every lookup for the pair return err (ErrInjected if nil)
func (f *FakeRoutingService) FailPair(origin, dest models.Coordinates, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[pairKey(origin, dest)] = err
}

func (f *FakeRoutingService) record(ctx context.Context, origin, dest models.Coordinates) error {
	if f.Delay != nil {
		if err := sleep(ctx, f.Delay(origin, dest)); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RouteCall{Origin: origin, Dest: dest})
	return f.failures[pairKey(origin, dest)]
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TravelCost returns the scaled Euclidean distance between two points
func (f *FakeRoutingService) TravelCost(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := f.record(ctx, origin, dest); err != nil {
		return 0, err
	}

	f.mu.Lock()
	override, ok := f.overrides[pairKey(origin, dest)]
	f.mu.Unlock()
	if ok {
		return override, nil
	}

	if models.SamePoint(origin, dest) {
		return 0, nil
	}
	dLat := dest.Lat - origin.Lat
	dLng := dest.Lng - origin.Lng
	return int64(math.Round(math.Sqrt(dLat*dLat+dLng*dLng) * f.ScaleFactor)), nil
}

// PathGeometry returns GeometryPoint evenly spaced points from origin to dest
func (f *FakeRoutingService) PathGeometry(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) ([]models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.record(ctx, origin, dest); err != nil {
		return nil, err
	}

	n := f.GeometryPoint
	if n < 2 {
		n = 2
	}
	path := make([]models.Coordinates, n)
	for i := range path {
		t := float64(i) / float64(n-1)
		path[i] = models.Coordinates{
			Lat: origin.Lat + (dest.Lat-origin.Lat)*t,
			Lng: origin.Lng + (dest.Lng-origin.Lng)*t,
		}
	}
	return path, nil
}

// Calls returns a copy of the recorded calls
func (f *FakeRoutingService) Calls() []RouteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RouteCall(nil), f.calls...)
}

// ResetCalls clears the recorded calls
func (f *FakeRoutingService) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// MockDistanceCache is a mock implementation of DistanceCacheRepository for testing
type MockDistanceCache struct {
	mu      sync.Mutex
	entries map[string]models.DistanceCacheEntry
	GetErr  error
	SetErr  error
}

func NewMockDistanceCache() *MockDistanceCache {
	return &MockDistanceCache{
		entries: make(map[string]models.DistanceCacheEntry),
	}
}

func cacheKey(mode models.TravelMode, origin, dest models.Coordinates) string {
	return string(mode) + ":" + pairKey(origin, dest)
}

func (c *MockDistanceCache) Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.DistanceCacheEntry, error) {
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[cacheKey(mode, origin, dest)]; ok {
		return &entry, nil
	}
	return nil, nil
}

// Set stores a single entry
func (c *MockDistanceCache) Set(ctx context.Context, entry models.DistanceCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(entry.Mode, entry.Origin, entry.Destination)] = entry
}

func (c *MockDistanceCache) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if c.SetErr != nil {
		return c.SetErr
	}
	for _, e := range entries {
		c.Set(ctx, e)
	}
	return nil
}

func (c *MockDistanceCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.DistanceCacheEntry)
	return nil
}

// Count returns the number of entries in the cache
func (c *MockDistanceCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
