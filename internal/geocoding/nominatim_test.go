package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
)

func newTestGeocoder(serverURL string, perSecond float64) *nominatimGeocoder {
	g := NewNominatimGeocoder(serverURL, &http.Client{Timeout: 10 * time.Second}, fanout.NewLimiter(perSecond), logging.Nop()).(*nominatimGeocoder)
	g.retryBase = time.Millisecond
	return g
}

func TestNominatimGeocodeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/search")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Galata Tower, Istanbul", r.URL.Query().Get("q"))

		response := []nominatimResponse{
			{Lat: "41.0256", Lon: "28.9741", DisplayName: "Galata Kulesi, Beyoğlu, İstanbul"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Galata Tower, Istanbul")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 41.0256, result.Coords.Lat)
	assert.Equal(t, 28.9741, result.Coords.Lng)
	assert.Equal(t, "Galata Kulesi, Beyoğlu, İstanbul", result.DisplayName)
}

func TestNominatimGeocodeNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]nominatimResponse{})
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Nonexistent Location")

	require.Error(t, err)
	assert.Nil(t, result)
	var geocodingErr *ErrGeocodingFailed
	require.True(t, errors.As(err, &geocodingErr))
	assert.Contains(t, geocodingErr.Reason, "no results found")
}

func TestNominatimGeocodeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Test Address")

	require.Error(t, err)
	assert.Nil(t, result)
	var geocodingErr *ErrGeocodingFailed
	require.True(t, errors.As(err, &geocodingErr))
	assert.Contains(t, geocodingErr.Reason, "HTTP 500")
}

func TestNominatimGeocodeInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Test Address")

	require.Error(t, err)
	assert.Nil(t, result)
}

func TestNominatimGeocodeInvalidLatLon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]nominatimResponse{{Lat: "invalid", Lon: "28.97", DisplayName: "Test"}})
	}))
	defer server.Close()

	_, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Test Address")

	var geocodingErr *ErrGeocodingFailed
	require.True(t, errors.As(err, &geocodingErr))
	assert.Contains(t, geocodingErr.Reason, "invalid latitude")
}

func TestNominatimGeocodeRateLimiting(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		json.NewEncoder(w).Encode([]nominatimResponse{{Lat: "41.0", Lon: "29.0", DisplayName: "Test"}})
	}))
	defer server.Close()

	geocoder := newTestGeocoder(server.URL, 20)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := geocoder.Geocode(context.Background(), "Test")
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// 20/s with burst 1: the second and third requests each wait ~50ms
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond, "rate limiting not working")
	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount))
}

func TestNominatimGeocodeWithRetrySuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]nominatimResponse{{Lat: "41.0082", Lon: "28.9784", DisplayName: "Istanbul"}})
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).GeocodeWithRetry(context.Background(), "Istanbul", 3)

	require.NoError(t, err)
	assert.Equal(t, 41.0082, result.Coords.Lat)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestNominatimGeocodeWithRetryAllFail(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result, err := newTestGeocoder(server.URL, 1000).GeocodeWithRetry(context.Background(), "Test", 3)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestNominatimGeocodeWithRetryNoResultsNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		json.NewEncoder(w).Encode([]nominatimResponse{})
	}))
	defer server.Close()

	_, err := newTestGeocoder(server.URL, 1000).GeocodeWithRetry(context.Background(), "nowhere", 3)

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestNominatimGeocodeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode([]nominatimResponse{{Lat: "41.0", Lon: "29.0", DisplayName: "Test"}})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := newTestGeocoder(server.URL, 1000).Geocode(ctx, "Test")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
}

func TestNominatimGeocodeUserAgent(t *testing.T) {
	var userAgentReceived string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgentReceived = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode([]nominatimResponse{{Lat: "41.0", Lon: "29.0", DisplayName: "Test"}})
	}))
	defer server.Close()

	_, err := newTestGeocoder(server.URL, 1000).Geocode(context.Background(), "Test")

	require.NoError(t, err)
	assert.Equal(t, "ItineraryRouter/1.0", userAgentReceived)
}

func TestNominatimSearchSkipsInvalidResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]nominatimResponse{
			{Lat: "41.01", Lon: "28.97", DisplayName: "First"},
			{Lat: "41.02", Lon: "bad", DisplayName: "Broken"},
			{Lat: "41.03", Lon: "28.99", DisplayName: "Third"},
		})
	}))
	defer server.Close()

	results, err := newTestGeocoder(server.URL, 1000).Search(context.Background(), "Istanbul", 5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "First", results[0].DisplayName)
	assert.Equal(t, "Third", results[1].DisplayName)
}
