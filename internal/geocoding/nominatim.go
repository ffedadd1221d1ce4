package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

const (
	userAgent = "ItineraryRouter/1.0"
	noResults = "no results found"
)

// GeocodingResult contains the result of a geocoding operation
type GeocodingResult struct {
	Coords      models.Coordinates `json:"coords"`
	DisplayName string             `json:"display_name"`
}

// Geocoder provides address-to-coordinates conversion
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodingResult, error)
	GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error)
	Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error)
}

// ErrGeocodingFailed is returned when an address cannot be geocoded
type ErrGeocodingFailed struct {
	Address string
	Reason  string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for address: %s - %s", e.Address, e.Reason)
}

type nominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
	policy     fanout.Policy
	retryBase  time.Duration
	logger     *slog.Logger
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimGeocoder creates a Nominatim geocoder. Requests wait on limiter,
// which should allow no more than one request per second for the public
// server.
func NewNominatimGeocoder(baseURL string, httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) Geocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &nominatimGeocoder{
		baseURL:    baseURL,
		httpClient: httpClient,
		policy:     fanout.Policy{Service: "geocoding", Limiter: limiter},
		retryBase:  time.Second,
		logger:     logging.Component(logger, "geocoding"),
	}
}

func (g *nominatimGeocoder) search(ctx context.Context, query string, limit int) ([]nominatimResponse, error) {
	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=%d", g.baseURL, url.QueryEscape(query), limit)
	g.logger.Debug("geocoding request", "query", query, "limit", limit)

	var results []nominatimResponse
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		if err != nil {
			return &ErrGeocodingFailed{Address: query, Reason: err.Error()}
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return &ErrGeocodingFailed{Address: query, Reason: err.Error()}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &ErrGeocodingFailed{
				Address: query,
				Reason:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			}
		}

		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return &ErrGeocodingFailed{Address: query, Reason: err.Error()}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("geocoding request failed", "query", query, "err", err)
		return nil, err
	}
	return results, nil
}

func parseResult(r nominatimResponse) (GeocodingResult, string) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return GeocodingResult{}, "invalid latitude"
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return GeocodingResult{}, "invalid longitude"
	}
	return GeocodingResult{
		Coords:      models.Coordinates{Lat: lat, Lng: lng},
		DisplayName: r.DisplayName,
	}, ""
}

func (g *nominatimGeocoder) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	results, err := g.search(ctx, address, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &ErrGeocodingFailed{Address: address, Reason: noResults}
	}

	result, problem := parseResult(results[0])
	if problem != "" {
		g.logger.Warn("invalid geocoding response", "address", address, "lat", results[0].Lat, "lng", results[0].Lon)
		return nil, &ErrGeocodingFailed{Address: address, Reason: problem}
	}

	g.logger.Debug("geocoded", "address", address, "lat", result.Coords.Lat, "lng", result.Coords.Lng)
	return &result, nil
}

// GeocodeWithRetry retries Geocode with exponential backoff starting at
// retryBase. A "no results" answer is not retried.
func (g *nominatimGeocoder) GeocodeWithRetry(ctx context.Context, address string, maxRetries int) (*GeocodingResult, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		result, err := g.Geocode(ctx, address)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var failed *ErrGeocodingFailed
		if ctx.Err() != nil || (errors.As(err, &failed) && failed.Reason == noResults) {
			return nil, err
		}

		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * g.retryBase
			g.logger.Info("geocoding retry", "attempt", i+1, "max", maxRetries, "backoff", backoff, "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	g.logger.Warn("geocoding gave up", "address", address, "attempts", maxRetries, "err", lastErr)
	return nil, lastErr
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error) {
	results, err := g.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]GeocodingResult, 0, len(results))
	for _, r := range results {
		parsed, problem := parseResult(r)
		if problem != "" {
			g.logger.Debug("skipping search result", "query", query, "reason", problem)
			continue
		}
		out = append(out, parsed)
	}
	g.logger.Debug("search complete", "query", query, "results", len(out))
	return out, nil
}
