package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"itinerary-router/internal/database"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
)

// Service orders catalog locations using travel costs from a MatrixBuilder
type Service struct {
	locations database.LocationRepository
	matrices  MatrixBuilder
	solver    *Solver
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService creates the optimization service. timeout bounds matrix building
// for a single request; zero leaves only the caller's deadline.
func NewService(locations database.LocationRepository, matrices MatrixBuilder, solver *Solver, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		locations: locations,
		matrices:  matrices,
		solver:    solver,
		timeout:   timeout,
		logger:    logging.Component(logger, "optimizer"),
	}
}

// OptimizeRoute reorders the location entries of route as a closed loop
// anchored at the first location. Sentinels keep their positions.
func (s *Service) OptimizeRoute(ctx context.Context, route models.Route) (models.Route, error) {
	ids := route.LocationIDs()
	if len(ids) < 2 {
		return nil, ErrInsufficientPoints
	}

	locs, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	tour, err := s.solve(ctx, locs, 0, 0)
	if err != nil {
		return nil, err
	}

	optimized := make([]string, len(tour.Order))
	for k, idx := range tour.Order {
		optimized[k] = ids[idx]
	}

	out, err := Reinsert(route, optimized)
	if err != nil {
		return nil, err
	}

	s.logger.Info("route optimized", "locations", len(ids), "entries", len(route), "cost", tour.Cost)
	return out, nil
}

// OptimizeFixedEndpoints orders ids so that startID comes first and endID
// last. Duplicate ids are visited once, at their first position. When
// startID equals endID the order is a closed loop.
func (s *Service) OptimizeFixedEndpoints(ctx context.Context, ids []string, startID, endID string) ([]string, models.Tour, error) {
	unique := dedupe(ids)

	startIdx, endIdx := indexOf(unique, startID), indexOf(unique, endID)
	if startIdx < 0 || endIdx < 0 {
		return nil, models.Tour{}, ErrInvalidFixedPoints
	}
	if len(unique) < 2 {
		return nil, models.Tour{}, ErrInsufficientPoints
	}

	locs, err := s.resolve(ctx, unique)
	if err != nil {
		return nil, models.Tour{}, err
	}

	tour, err := s.solve(ctx, locs, startIdx, endIdx)
	if err != nil {
		return nil, models.Tour{}, err
	}

	ordered := make([]string, len(tour.Order))
	for k, idx := range tour.Order {
		ordered[k] = unique[idx]
	}

	s.logger.Info("itinerary optimized", "locations", len(unique), "start", startID, "end", endID, "cost", tour.Cost)
	return ordered, tour, nil
}

func (s *Service) solve(ctx context.Context, locs []models.Location, start, end int) (models.Tour, error) {
	points := make([]models.Coordinates, len(locs))
	for i := range locs {
		points[i] = locs[i].GetCoords()
	}

	buildCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	matrix, report := s.matrices.Build(buildCtx, points)
	if report.Failed > 0 {
		s.logger.Warn("cost matrix has unreachable pairs", "failed", report.Failed, "pairs", report.Pairs)
	}

	// The solver only stops early on ctx; a partial matrix still gets solved.
	return s.solver.Solve(ctx, matrix, start, end)
}

// resolve loads locations in ids order, failing on the first unknown id
func (s *Service) resolve(ctx context.Context, ids []string) ([]models.Location, error) {
	found, err := s.locations.FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}

	byID := make(map[string]models.Location, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}

	locs := make([]models.Location, len(ids))
	for i, id := range ids {
		l, ok := byID[id]
		if !ok {
			return nil, &ErrPlaceNotFound{ID: id}
		}
		locs[i] = l
	}
	return locs, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
