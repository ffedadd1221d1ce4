package places

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/golang/geo/s2"
	"github.com/serjvanilla/go-overpass"

	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points
func DistanceMeters(a, b models.Coordinates) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * earthRadiusMeters
}

// OverpassLookup queries OpenStreetMap through the Overpass API
type OverpassLookup struct {
	endpoint  string
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOverpassLookup creates a lookup against endpoint. timeout bounds each
// HTTP request in addition to the caller's context.
func NewOverpassLookup(endpoint string, timeout time.Duration, logger *slog.Logger) *OverpassLookup {
	if endpoint == "" {
		endpoint = "https://overpass-api.de/api/interpreter"
	}
	return &OverpassLookup{
		endpoint:  endpoint,
		transport: http.DefaultTransport,
		timeout:   timeout,
		logger:    logging.Component(logger, "overpass"),
	}
}

// contextTransport binds outgoing requests to a context; the Overpass
// client builds its requests without one.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (o *OverpassLookup) client(ctx context.Context) overpass.Client {
	httpClient := &http.Client{
		Timeout:   o.timeout,
		Transport: &contextTransport{ctx: ctx, base: o.transport},
	}
	return overpass.NewWithSettings(o.endpoint, 1, httpClient)
}

func buildQuery(tag tagSelector, point models.Coordinates, radius int) string {
	return fmt.Sprintf(`
		[out:json][timeout:25];
		(
			node["%[1]s"="%[2]s"](around:%[3]d,%.6[4]f,%.6[5]f);
			way["%[1]s"="%[2]s"](around:%[3]d,%.6[4]f,%.6[5]f);
		);
		out body;
		>;
		out skel qt;
	`, tag.Key, tag.Value, radius, point.Lat, point.Lng)
}

// Nearby returns named places of placeType within radius meters of point,
// nearest first, at most limit of them.
func (o *OverpassLookup) Nearby(ctx context.Context, point models.Coordinates, placeType string, radius, limit int) ([]models.Location, error) {
	tag, ok := placeTypeTags[placeType]
	if !ok {
		return nil, &ErrUnknownPlaceType{PlaceType: placeType}
	}

	query := buildQuery(tag, point, radius)
	client := o.client(ctx)
	result, err := client.Query(query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}

	locs := convertResult(&result, tag, placeType)
	sortByDistance(locs, point)
	if limit > 0 && len(locs) > limit {
		locs = locs[:limit]
	}

	o.logger.Debug("nearby places", "type", placeType, "lat", point.Lat, "lng", point.Lng, "results", len(locs))
	return locs, nil
}

func convertResult(result *overpass.Result, tag tagSelector, placeType string) []models.Location {
	var locs []models.Location

	for _, node := range result.Nodes {
		if node.Tags[tag.Key] != tag.Value || node.Tags["name"] == "" {
			continue
		}
		locs = append(locs, models.Location{
			ID:       fmt.Sprintf("osm:node/%d", node.ID),
			Name:     node.Tags["name"],
			Lat:      node.Lat,
			Lng:      node.Lon,
			Category: placeType,
		})
	}

	for _, way := range result.Ways {
		if way.Tags[tag.Key] != tag.Value || way.Tags["name"] == "" {
			continue
		}
		var lat, lon float64
		count := 0
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			lat += node.Lat
			lon += node.Lon
			count++
		}
		if count == 0 {
			continue
		}
		locs = append(locs, models.Location{
			ID:       fmt.Sprintf("osm:way/%d", way.ID),
			Name:     way.Tags["name"],
			Lat:      lat / float64(count),
			Lng:      lon / float64(count),
			Category: placeType,
		})
	}

	return locs
}

func sortByDistance(locs []models.Location, point models.Coordinates) {
	dist := make(map[string]float64, len(locs))
	for _, l := range locs {
		dist[l.ID] = DistanceMeters(point, l.GetCoords())
	}
	sort.SliceStable(locs, func(i, j int) bool {
		di, dj := dist[locs[i].ID], dist[locs[j].ID]
		if di != dj {
			return di < dj
		}
		return locs[i].ID < locs[j].ID
	})
}
