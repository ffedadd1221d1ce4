package distance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

func newTestService(server *httptest.Server) *osrmService {
	return &osrmService{
		baseURL:    server.URL,
		httpClient: server.Client(),
		logger:     logging.Nop(),
	}
}

func TestTravelCost_Success(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":1234.6,"duration":90}]}`))
	}))
	defer server.Close()

	svc := newTestService(server)
	cost, err := svc.TravelCost(context.Background(),
		models.Coordinates{Lat: 41.0, Lng: 29.0},
		models.Coordinates{Lat: 41.1, Lng: 29.1},
		models.ModeDriving)

	require.NoError(t, err)
	assert.Equal(t, int64(1235), cost)
	assert.Equal(t, "/route/v1/driving/29.000000,41.000000;29.100000,41.100000", gotPath)
	assert.Equal(t, "overview=false", gotQuery)
}

func TestTravelCost_SamePointSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("routing API should not be called for identical points")
	}))
	defer server.Close()

	svc := newTestService(server)
	cost, err := svc.TravelCost(context.Background(),
		models.Coordinates{Lat: 41.000001, Lng: 29.0},
		models.Coordinates{Lat: 41.000002, Lng: 29.0},
		models.ModeDriving)

	require.NoError(t, err)
	assert.Equal(t, int64(0), cost)
}

func TestTravelCost_WalkingProfile(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":10}]}`))
	}))
	defer server.Close()

	_, err := newTestService(server).TravelCost(context.Background(),
		models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2}, models.ModeWalking)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/route/v1/foot/"))
}

func TestTravelCost_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"rate limited", http.StatusTooManyRequests, `slow down`, false},
		{"bad request", http.StatusBadRequest, `{"code":"InvalidQuery"}`, true},
		{"no route", http.StatusOK, `{"code":"NoRoute","message":"Impossible route"}`, true},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`, true},
		{"malformed", http.StatusOK, `{"code":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestService(server).TravelCost(context.Background(),
				models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2}, models.ModeDriving)

			require.Error(t, err)
			var lookupErr *ErrLookupFailed
			assert.True(t, errors.As(err, &lookupErr))
			assert.Equal(t, tt.permanent, fanout.IsPermanent(err))
		})
	}
}

func TestPathGeometry_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":500,"geometry":{"type":"LineString","coordinates":[[29.0,41.0],[29.05,41.05],[29.1,41.1]]}}]}`))
	}))
	defer server.Close()

	path, err := newTestService(server).PathGeometry(context.Background(),
		models.Coordinates{Lat: 41.0, Lng: 29.0}, models.Coordinates{Lat: 41.1, Lng: 29.1}, models.ModeDriving)

	require.NoError(t, err)
	assert.Equal(t, "overview=full&geometries=geojson", gotQuery)
	require.Len(t, path, 3)
	assert.Equal(t, models.Coordinates{Lat: 41.0, Lng: 29.0}, path[0])
	assert.Equal(t, models.Coordinates{Lat: 41.05, Lng: 29.05}, path[1])
}

func TestPathGeometry_MissingGeometry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":500}]}`))
	}))
	defer server.Close()

	_, err := newTestService(server).PathGeometry(context.Background(),
		models.Coordinates{Lat: 1, Lng: 1}, models.Coordinates{Lat: 2, Lng: 2}, models.ModeDriving)

	assert.Error(t, err)
}

func TestNewOSRMService_Defaults(t *testing.T) {
	svc := NewOSRMService("http://osrm.local/", nil, nil).(*osrmService)

	assert.Equal(t, "http://osrm.local", svc.baseURL)
	assert.NotNil(t, svc.httpClient)
	assert.NotNil(t, svc.logger)
}
