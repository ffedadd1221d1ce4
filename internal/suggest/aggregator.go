package suggest

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
	"itinerary-router/internal/places"
)

// AggregateReport summarizes a nearby-place fan-out
type AggregateReport struct {
	Queries int `json:"queries"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Hits    int `json:"hits"`
	Unique  int `json:"unique"`
}

// Aggregator queries nearby places for every (point, place type) pair
type Aggregator struct {
	places      places.LookupService
	policy      fanout.Policy
	concurrency int
	logger      *slog.Logger
}

// AggregatorOptions configures an Aggregator
type AggregatorOptions struct {
	Policy      fanout.Policy
	Concurrency int
}

func NewAggregator(lookup places.LookupService, opts AggregatorOptions, logger *slog.Logger) *Aggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Policy.Service == "" {
		opts.Policy.Service = "places"
	}
	return &Aggregator{
		places:      lookup,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		logger:      logging.Component(logger, "aggregator"),
	}
}

type queryResult struct {
	locs []models.Location
	err  error
	done bool
}

// Aggregate issues one lookup per (point, place type) and merges the results
// by location id. Each lookup contributes at most limit places. Slots are
// merged point-major with place types in sorted order; the first occurrence
// of an id wins. Failed lookups are counted and left out.
func (a *Aggregator) Aggregate(ctx context.Context, points []models.Coordinates, placeTypes []string, radius, limit int) (map[string]models.Location, AggregateReport) {
	start := time.Now()
	types := append([]string(nil), placeTypes...)
	sort.Strings(types)
	types = dedupeSorted(types)

	total := len(points) * len(types)
	report := AggregateReport{Queries: total}
	set := make(map[string]models.Location)
	if total == 0 {
		return set, report
	}

	results := make([]queryResult, total)
	err := fanout.Run(ctx, total, a.concurrency, func(ctx context.Context, slot int) {
		point := points[slot/len(types)]
		placeType := types[slot%len(types)]
		var locs []models.Location
		err := a.policy.Do(ctx, func(ctx context.Context) error {
			var lerr error
			locs, lerr = a.places.Nearby(ctx, point, placeType, radius, limit)
			return lerr
		})
		if limit > 0 && len(locs) > limit {
			locs = locs[:limit]
		}
		results[slot] = queryResult{locs: locs, err: err, done: true}
	})
	if err != nil {
		a.logger.Warn("aggregation interrupted", "err", err)
	}

	for slot, r := range results {
		switch {
		case !r.done:
			report.Skipped++
			continue
		case r.err != nil:
			report.Failed++
			a.logger.Warn("nearby lookup failed",
				"type", types[slot%len(types)],
				"point", slot/len(types),
				"err", r.err)
			continue
		}
		for _, loc := range r.locs {
			report.Hits++
			if _, seen := set[loc.ID]; seen {
				continue
			}
			set[loc.ID] = loc
		}
	}
	report.Unique = len(set)

	a.logger.Info("suggestions aggregated",
		"queries", report.Queries,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"hits", report.Hits,
		"unique", report.Unique,
		"duration", time.Since(start))
	return set, report
}

// Rank orders a suggestion set by distance to the nearest sample point,
// breaking ties by id.
func Rank(set map[string]models.Location, points []models.Coordinates) []models.Location {
	out := make([]models.Location, 0, len(set))
	dist := make(map[string]float64, len(set))
	for id, loc := range set {
		out = append(out, loc)
		best := math.Inf(1)
		for _, p := range points {
			if d := places.DistanceMeters(p, loc.GetCoords()); d < best {
				best = d
			}
		}
		dist[id] = best
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := dist[out[i].ID], dist[out[j].ID]
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func dedupeSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
