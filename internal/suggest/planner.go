package suggest

import (
	"context"
	"log/slog"
	"time"

	"itinerary-router/internal/database"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
	"itinerary-router/internal/preferences"
)

// PlanRequest is a request for suggestions along a route
type PlanRequest struct {
	Text string
	// UseNLP set to false forces manual mode even without the prefix
	UseNLP *bool
	// Categories are merged into manual mode selections
	Categories []string
	Waypoints  []models.Coordinates
}

// PlanResult is the outcome of a planning request
type PlanResult struct {
	Preferences models.Preferences   `json:"preferences"`
	PlaceTypes  []string             `json:"place_types"`
	Waypoints   []models.Coordinates `json:"waypoints"`
	Suggestions []models.Location    `json:"suggestions"`
	Sampling    SampleReport         `json:"sampling"`
	Aggregation AggregateReport      `json:"aggregation"`
}

// PlannerOptions tunes the planning pipeline
type PlannerOptions struct {
	SamplesPerSegment int
	Radius            int
	Limit             int
	MinScore          float64
	Timeout           time.Duration
}

// DefaultPlannerOptions returns the standard pipeline settings
func DefaultPlannerOptions() PlannerOptions {
	return PlannerOptions{
		SamplesPerSegment: 5,
		Radius:            5000,
		Limit:             5,
		MinScore:          DefaultMinScore,
		Timeout:           60 * time.Second,
	}
}

// Planner runs preference extraction, route sampling and aggregation
type Planner struct {
	sampler    *Sampler
	aggregator *Aggregator
	translator *Translator
	extractor  preferences.Extractor
	locations  database.LocationRepository
	opts       PlannerOptions
	logger     *slog.Logger
}

// NewPlanner wires a planner. locations may be nil, in which case
// suggestions are not recorded in the catalog.
func NewPlanner(sampler *Sampler, aggregator *Aggregator, translator *Translator, extractor preferences.Extractor, locations database.LocationRepository, opts PlannerOptions, logger *slog.Logger) *Planner {
	defaults := DefaultPlannerOptions()
	if opts.SamplesPerSegment <= 0 {
		opts.SamplesPerSegment = defaults.SamplesPerSegment
	}
	if opts.Radius <= 0 {
		opts.Radius = defaults.Radius
	}
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	if opts.MinScore < 0 {
		opts.MinScore = defaults.MinScore
	}
	if translator == nil {
		translator = defaultTranslator
	}
	return &Planner{
		sampler:    sampler,
		aggregator: aggregator,
		translator: translator,
		extractor:  extractor,
		locations:  locations,
		opts:       opts,
		logger:     logging.Component(logger, "planner"),
	}
}

// PlanSuggestions resolves the request's interests into place types and
// collects ranked places along the waypoint route. Collaborator failures
// shrink the result rather than failing the request.
func (p *Planner) PlanSuggestions(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if len(req.Waypoints) < 2 {
		return nil, ErrInsufficientWaypoints
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	prefs := p.preferences(ctx, req)
	placeTypes := p.translator.TranslateWeights(prefs.Categories, p.opts.MinScore)

	samples, sampling, err := p.sampler.Sample(ctx, req.Waypoints, p.opts.SamplesPerSegment)
	if err != nil {
		return nil, err
	}

	set, aggregation := p.aggregator.Aggregate(ctx, samples, placeTypes, p.opts.Radius, p.opts.Limit)
	ranked := Rank(set, samples)
	p.record(ctx, ranked)

	p.logger.Info("plan complete",
		"source", prefs.Source,
		"place_types", placeTypes,
		"samples", len(samples),
		"suggestions", len(ranked))

	return &PlanResult{
		Preferences: prefs,
		PlaceTypes:  placeTypes,
		Waypoints:   req.Waypoints,
		Suggestions: ranked,
		Sampling:    sampling,
		Aggregation: aggregation,
	}, nil
}

func (p *Planner) preferences(ctx context.Context, req PlanRequest) models.Preferences {
	manual, prefixed := preferences.ParseManual(req.Text)
	if prefixed || (req.UseNLP != nil && !*req.UseNLP) || p.extractor == nil {
		return preferences.Manual(append(manual, req.Categories...))
	}

	prefs, err := p.extractor.Infer(ctx, req.Text)
	if err != nil {
		p.logger.Warn("preference extraction failed, using default place type", "err", err)
		return models.Preferences{Categories: map[string]float64{}, Source: "none"}
	}
	return prefs
}

// record adds suggestions to the catalog. Failures are logged only.
func (p *Planner) record(ctx context.Context, locs []models.Location) {
	if p.locations == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	failed := 0
	for i := range locs {
		if err := p.locations.Upsert(ctx, &locs[i]); err != nil {
			failed++
			p.logger.Warn("catalog upsert failed", "id", locs[i].ID, "err", err)
		}
	}
	if failed > 0 {
		p.logger.Warn("suggestions not recorded", "failed", failed, "total", len(locs))
	}
}
