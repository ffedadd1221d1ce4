package places

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
	"itinerary-router/internal/testutil"
)

const cafeResponse = `{
  "version": 0.6,
  "elements": [
    {"type": "node", "id": 1, "lat": 41.0100, "lon": 29.0000, "tags": {"amenity": "cafe", "name": "Far Cafe"}},
    {"type": "node", "id": 2, "lat": 41.0010, "lon": 29.0000, "tags": {"amenity": "cafe", "name": "Near Cafe"}},
    {"type": "node", "id": 3, "lat": 41.0020, "lon": 29.0000, "tags": {"amenity": "cafe"}},
    {"type": "node", "id": 4, "lat": 41.0030, "lon": 29.0000, "tags": {"amenity": "bar", "name": "Bar"}},
    {"type": "way", "id": 10, "nodes": [20, 21], "tags": {"amenity": "cafe", "name": "Garden Cafe"}},
    {"type": "node", "id": 20, "lat": 41.0040, "lon": 29.0000},
    {"type": "node", "id": 21, "lat": 41.0060, "lon": 29.0000}
  ]
}`

func newTestOverpass(t *testing.T, handler http.HandlerFunc) *OverpassLookup {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOverpassLookup(server.URL, 5*time.Second, logging.Nop())
}

func TestOverpassNearby(t *testing.T) {
	var query string
	lookup := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.FormValue("data")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, cafeResponse)
	})

	locs, err := lookup.Nearby(context.Background(), models.Coordinates{Lat: 41.0, Lng: 29.0}, "cafe", 1500, 10)
	require.NoError(t, err)

	assert.Contains(t, query, `node["amenity"="cafe"](around:1500,41.000000,29.000000)`)
	assert.Contains(t, query, `way["amenity"="cafe"]`)

	require.Len(t, locs, 3, "unnamed and off-type elements are dropped")
	assert.Equal(t, "osm:node/2", locs[0].ID)
	assert.Equal(t, "Near Cafe", locs[0].Name)
	assert.Equal(t, "osm:way/10", locs[1].ID)
	assert.InDelta(t, 41.005, locs[1].Lat, 1e-9)
	assert.Equal(t, "osm:node/1", locs[2].ID)
	for _, l := range locs {
		assert.Equal(t, "cafe", l.Category)
	}
}

func TestOverpassNearby_Limit(t *testing.T) {
	lookup := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cafeResponse)
	})

	locs, err := lookup.Nearby(context.Background(), models.Coordinates{Lat: 41.0, Lng: 29.0}, "cafe", 1500, 1)

	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "Near Cafe", locs[0].Name)
}

func TestOverpassNearby_UnknownType(t *testing.T) {
	var calls int32
	lookup := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := lookup.Nearby(context.Background(), models.Coordinates{}, "unknown_xyz", 100, 5)

	var unknown *ErrUnknownPlaceType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown_xyz", unknown.PlaceType)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestOverpassNearby_ServerError(t *testing.T) {
	lookup := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := lookup.Nearby(context.Background(), models.Coordinates{Lat: 1, Lng: 1}, "park", 100, 5)

	assert.Error(t, err)
}

func TestOverpassNearby_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	lookup := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := lookup.Nearby(ctx, models.Coordinates{Lat: 1, Lng: 1}, "park", 100, 5)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDistanceMeters(t *testing.T) {
	// One degree of latitude is roughly 111 km
	d := DistanceMeters(models.Coordinates{Lat: 0, Lng: 0}, models.Coordinates{Lat: 1, Lng: 0})
	assert.InDelta(t, 111195, d, 50)
	assert.Zero(t, DistanceMeters(models.Coordinates{Lat: 5, Lng: 5}, models.Coordinates{Lat: 5, Lng: 5}))
}

func TestSupportedPlaceType(t *testing.T) {
	assert.True(t, SupportedPlaceType("tourist_attraction"))
	assert.True(t, SupportedPlaceType("natural_feature"))
	assert.False(t, SupportedPlaceType("Tourist_Attraction"))
}

func TestCachedLookup(t *testing.T) {
	fake := testutil.NewFakePlaceLookup()
	fake.AddPlaces("park", models.Location{ID: "p1", Name: "Park", Lat: 1, Lng: 1})
	cached := NewCachedLookup(fake, time.Minute)
	point := models.Coordinates{Lat: 10, Lng: 20}

	first, err := cached.Nearby(context.Background(), point, "park", 500, 5)
	require.NoError(t, err)
	second, err := cached.Nearby(context.Background(), point, "park", 500, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, fake.Queries(), 1)
	assert.Equal(t, 1, cached.size())

	// Different radius is a different key
	_, err = cached.Nearby(context.Background(), point, "park", 1000, 5)
	require.NoError(t, err)
	assert.Len(t, fake.Queries(), 2)

	cached.cache.Flush()
	assert.Zero(t, cached.size())
}

func TestCachedLookup_FailuresNotCached(t *testing.T) {
	fake := testutil.NewFakePlaceLookup()
	fake.FailType("museum", nil)
	cached := NewCachedLookup(fake, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cached.Nearby(context.Background(), models.Coordinates{Lat: 1, Lng: 1}, "museum", 500, 5)
		assert.ErrorIs(t, err, testutil.ErrInjected)
	}
	assert.Len(t, fake.Queries(), 2)
	assert.Zero(t, cached.size())
}

func TestCachedLookup_ReturnsCopies(t *testing.T) {
	fake := testutil.NewFakePlaceLookup()
	fake.AddPlaces("zoo", models.Location{ID: "z1", Name: "Zoo"})
	cached := NewCachedLookup(fake, time.Minute)

	first, _ := cached.Nearby(context.Background(), models.Coordinates{}, "zoo", 1, 1)
	first[0].Name = strings.ToUpper(first[0].Name) + "!"

	second, _ := cached.Nearby(context.Background(), models.Coordinates{}, "zoo", 1, 1)
	assert.Equal(t, "Zoo", second[0].Name)
}
