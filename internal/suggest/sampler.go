// Package suggest samples a multi-stop route and gathers nearby places
// along it into a deduplicated, ranked suggestion set.
package suggest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"itinerary-router/internal/distance"
	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

var (
	// ErrInsufficientWaypoints is returned when fewer than two waypoints are given
	ErrInsufficientWaypoints = errors.New("at least two waypoints are required")
	// ErrInvalidSampleCount is returned when fewer than one sample per segment is requested
	ErrInvalidSampleCount = errors.New("samples per segment must be at least 1")
)

// SampleReport summarizes a sampling run
type SampleReport struct {
	Segments       int   `json:"segments"`
	Failed         int   `json:"failed"`
	FailedSegments []int `json:"failed_segments,omitempty"`
	Points         int   `json:"points"`
}

// Sampler turns waypoints into evenly spaced points along the travelled path
type Sampler struct {
	routes      distance.RoutingService
	policy      fanout.Policy
	concurrency int
	mode        models.TravelMode
	logger      *slog.Logger
}

// SamplerOptions configures a Sampler
type SamplerOptions struct {
	Policy      fanout.Policy
	Concurrency int
	Mode        models.TravelMode
}

func NewSampler(routes distance.RoutingService, opts SamplerOptions, logger *slog.Logger) *Sampler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeDriving
	}
	if opts.Policy.Service == "" {
		opts.Policy.Service = "directions"
	}
	return &Sampler{
		routes:      routes,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		mode:        opts.Mode,
		logger:      logging.Component(logger, "sampler"),
	}
}

// Stride picks up to k points from path at a fixed stride of
// max(1, len(path)/k), starting with the first point.
func Stride(path []models.Coordinates, k int) []models.Coordinates {
	if len(path) == 0 || k < 1 {
		return nil
	}
	step := len(path) / k
	if step < 1 {
		step = 1
	}
	out := make([]models.Coordinates, 0, k)
	for i := 0; i < len(path) && len(out) < k; i += step {
		out = append(out, path[i])
	}
	return out
}

type segmentResult struct {
	points []models.Coordinates
	err    error
	done   bool
}

// Sample fetches the geometry of every consecutive waypoint pair and returns
// at most k points per segment, in route order. Segments whose lookup fails
// are logged and left out.
func (s *Sampler) Sample(ctx context.Context, waypoints []models.Coordinates, k int) ([]models.Coordinates, SampleReport, error) {
	if len(waypoints) < 2 {
		return nil, SampleReport{}, ErrInsufficientWaypoints
	}
	if k < 1 {
		return nil, SampleReport{}, ErrInvalidSampleCount
	}

	start := time.Now()
	segments := len(waypoints) - 1
	results := make([]segmentResult, segments)

	err := fanout.Run(ctx, segments, s.concurrency, func(ctx context.Context, i int) {
		var path []models.Coordinates
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			var gerr error
			path, gerr = s.routes.PathGeometry(ctx, waypoints[i], waypoints[i+1], s.mode)
			return gerr
		})
		if err != nil {
			results[i] = segmentResult{err: err, done: true}
			return
		}
		results[i] = segmentResult{points: Stride(path, k), done: true}
	})
	if err != nil {
		s.logger.Warn("sampling interrupted", "err", err)
	}

	report := SampleReport{Segments: segments}
	var samples []models.Coordinates
	for i, r := range results {
		if !r.done || r.err != nil {
			report.Failed++
			report.FailedSegments = append(report.FailedSegments, i)
			if r.err != nil {
				s.logger.Warn("segment geometry lookup failed", "segment", i, "err", r.err)
			}
			continue
		}
		samples = append(samples, r.points...)
	}
	report.Points = len(samples)

	s.logger.Info("route sampled",
		"segments", segments,
		"failed", report.Failed,
		"points", report.Points,
		"duration", time.Since(start))
	return samples, report, nil
}
