package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

// RoutingService provides point-to-point travel cost and path geometry
type RoutingService interface {
	// TravelCost returns the travel distance in meters from origin to dest
	TravelCost(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (int64, error)
	// PathGeometry returns the ordered points of the route from origin to dest
	PathGeometry(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) ([]models.Coordinates, error)
}

// ErrLookupFailed is returned when the routing API fails for a pair
type ErrLookupFailed struct {
	Origin models.Coordinates
	Dest   models.Coordinates
	Reason string
}

func (e *ErrLookupFailed) Error() string {
	return fmt.Sprintf("route lookup failed (%.5f,%.5f)->(%.5f,%.5f): %s",
		e.Origin.Lat, e.Origin.Lng, e.Dest.Lat, e.Dest.Lng, e.Reason)
}

type osrmService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry *struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// NewOSRMService creates a routing service backed by the OSRM route API
func NewOSRMService(baseURL string, httpClient *http.Client, logger *slog.Logger) RoutingService {
	if baseURL == "" {
		baseURL = "https://router.project-osrm.org"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &osrmService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logging.Component(logger, "osrm"),
	}
}

func osrmProfile(mode models.TravelMode) string {
	switch mode {
	case models.ModeWalking:
		return "foot"
	case models.ModeCycling:
		return "bike"
	default:
		return "driving"
	}
}

func (s *osrmService) TravelCost(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (int64, error) {
	if models.SamePoint(origin, dest) {
		return 0, nil
	}

	resp, err := s.route(ctx, origin, dest, mode, "overview=false")
	if err != nil {
		return 0, err
	}

	meters := int64(math.Round(resp.Routes[0].Distance))
	s.logger.Debug("travel cost", "origin", origin, "dest", dest, "meters", meters)
	return meters, nil
}

func (s *osrmService) PathGeometry(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) ([]models.Coordinates, error) {
	resp, err := s.route(ctx, origin, dest, mode, "overview=full&geometries=geojson")
	if err != nil {
		return nil, err
	}

	geom := resp.Routes[0].Geometry
	if geom == nil || len(geom.Coordinates) == 0 {
		return nil, &ErrLookupFailed{Origin: origin, Dest: dest, Reason: "route has no geometry"}
	}

	path := make([]models.Coordinates, len(geom.Coordinates))
	for i, c := range geom.Coordinates {
		// GeoJSON positions are [lng, lat]
		path[i] = models.Coordinates{Lat: c[1], Lng: c[0]}
	}

	s.logger.Debug("path geometry", "origin", origin, "dest", dest, "points", len(path))
	return path, nil
}

func (s *osrmService) route(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode, query string) (*osrmRouteResponse, error) {
	queryURL := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?%s",
		s.baseURL, osrmProfile(mode), origin.Lng, origin.Lat, dest.Lng, dest.Lat, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fanout.Permanent(&ErrLookupFailed{Origin: origin, Dest: dest, Reason: err.Error()})
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("route request failed", "origin", origin, "dest", dest, "err", err)
		return nil, &ErrLookupFailed{Origin: origin, Dest: dest, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Warn("route API error", "origin", origin, "dest", dest, "status", resp.StatusCode)
		lookupErr := &ErrLookupFailed{
			Origin: origin,
			Dest:   dest,
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
		// 4xx other than rate limiting will not change on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fanout.Permanent(lookupErr)
		}
		return nil, lookupErr
	}

	var routeResp osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResp); err != nil {
		return nil, &ErrLookupFailed{Origin: origin, Dest: dest, Reason: "decode: " + err.Error()}
	}

	if routeResp.Code != "Ok" {
		return nil, fanout.Permanent(&ErrLookupFailed{
			Origin: origin,
			Dest:   dest,
			Reason: fmt.Sprintf("OSRM error: %s %s", routeResp.Code, routeResp.Message),
		})
	}
	if len(routeResp.Routes) == 0 {
		return nil, fanout.Permanent(&ErrLookupFailed{Origin: origin, Dest: dest, Reason: "no routes returned"})
	}

	return &routeResp, nil
}
