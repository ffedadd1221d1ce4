package distance

import (
	"context"
	"log/slog"
	"time"

	"itinerary-router/internal/database"
	"itinerary-router/internal/fanout"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

// BuildReport summarizes how a cost matrix was filled
type BuildReport struct {
	Pairs       int      `json:"pairs"`
	CacheHits   int      `json:"cache_hits"`
	Lookups     int      `json:"lookups"`
	Failed      int      `json:"failed"`
	FailedPairs [][2]int `json:"failed_pairs,omitempty"`
}

// MatrixProvider builds cost matrices from a RoutingService.
// Each ordered pair is looked up independently; a failed lookup leaves the
// cell at models.Unreachable instead of failing the build.
type MatrixProvider struct {
	service     RoutingService
	cache       database.DistanceCacheRepository
	policy      fanout.Policy
	concurrency int
	mode        models.TravelMode
	logger      *slog.Logger
}

// MatrixOptions configures a MatrixProvider
type MatrixOptions struct {
	Policy      fanout.Policy
	Concurrency int
	Mode        models.TravelMode
}

// NewMatrixProvider creates a matrix provider. cache may be nil.
func NewMatrixProvider(service RoutingService, cache database.DistanceCacheRepository, opts MatrixOptions, logger *slog.Logger) *MatrixProvider {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeDriving
	}
	if opts.Policy.Service == "" {
		opts.Policy.Service = "routing"
	}
	return &MatrixProvider{
		service:     service,
		cache:       cache,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		mode:        opts.Mode,
		logger:      logging.Component(logger, "matrix"),
	}
}

type cellResult struct {
	cost int64
	err  error
	done bool
}

// Build returns an n×n matrix for points. It never fails: cells whose lookup
// failed, timed out or was skipped after ctx expired hold models.Unreachable.
func (p *MatrixProvider) Build(ctx context.Context, points []models.Coordinates) (models.CostMatrix, BuildReport) {
	start := time.Now()
	n := len(points)
	matrix := models.NewCostMatrix(n)
	report := BuildReport{Pairs: n * (n - 1)}
	if n < 2 {
		report.Pairs = 0
		return matrix, report
	}

	var missing [][2]int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if models.SamePoint(points[i], points[j]) {
				continue
			}
			if cost, ok := p.cached(ctx, points[i], points[j]); ok {
				matrix[i][j] = cost
				report.CacheHits++
				continue
			}
			missing = append(missing, [2]int{i, j})
		}
	}

	results := make([]cellResult, len(missing))
	if len(missing) > 0 {
		err := fanout.Run(ctx, len(missing), p.concurrency, func(ctx context.Context, k int) {
			i, j := missing[k][0], missing[k][1]
			var cost int64
			err := p.policy.Do(ctx, func(ctx context.Context) error {
				var lerr error
				cost, lerr = p.service.TravelCost(ctx, points[i], points[j], p.mode)
				return lerr
			})
			results[k] = cellResult{cost: cost, err: err, done: true}
		})
		if err != nil {
			p.logger.Warn("matrix build interrupted", "err", err, "pending", countPending(results))
		}
	}

	var entries []models.DistanceCacheEntry
	for k, r := range results {
		i, j := missing[k][0], missing[k][1]
		report.Lookups++
		if !r.done || r.err != nil {
			matrix[i][j] = models.Unreachable
			report.Failed++
			report.FailedPairs = append(report.FailedPairs, missing[k])
			if r.err != nil {
				p.logger.Warn("travel cost lookup failed", "from", i, "to", j, "err", r.err)
			}
			continue
		}
		matrix[i][j] = r.cost
		entries = append(entries, models.DistanceCacheEntry{
			Mode:           p.mode,
			Origin:         points[i],
			Destination:    points[j],
			DistanceMeters: float64(r.cost),
		})
	}

	p.store(ctx, entries)

	p.logger.Info("matrix built",
		"points", n,
		"cache_hits", report.CacheHits,
		"lookups", report.Lookups,
		"failed", report.Failed,
		"duration", time.Since(start))
	return matrix, report
}

func (p *MatrixProvider) cached(ctx context.Context, origin, dest models.Coordinates) (int64, bool) {
	if p.cache == nil {
		return 0, false
	}
	entry, err := p.cache.Get(ctx, origin, dest, p.mode)
	if err != nil {
		p.logger.Warn("distance cache read failed", "err", err)
		return 0, false
	}
	if entry == nil {
		return 0, false
	}
	return int64(entry.DistanceMeters + 0.5), true
}

func (p *MatrixProvider) store(ctx context.Context, entries []models.DistanceCacheEntry) {
	if p.cache == nil || len(entries) == 0 {
		return
	}
	// Detached so completed lookups are stored even after the deadline.
	if err := p.cache.SetBatch(context.WithoutCancel(ctx), entries); err != nil {
		p.logger.Warn("distance cache write failed", "entries", len(entries), "err", err)
	}
}

func countPending(results []cellResult) int {
	pending := 0
	for _, r := range results {
		if !r.done {
			pending++
		}
	}
	return pending
}
