package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"itinerary-router/internal/logging"
	"itinerary-router/internal/metrics"
	"itinerary-router/internal/models"
)

// SolverOptions bounds the local search phase
type SolverOptions struct {
	// MaxPasses caps improvement passes; each pass applies at most one move per neighbourhood
	MaxPasses int
	// TimeBudget caps wall time spent improving; zero means no limit beyond ctx
	TimeBudget time.Duration
}

// DefaultSolverOptions returns the limits used by the service
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		MaxPasses:  1000,
		TimeBudget: 2 * time.Second,
	}
}

// Solver computes a short Hamiltonian path over a cost matrix with pinned
// endpoints: cheapest insertion followed by 2-opt and relocate moves.
// Results are deterministic for a given matrix; ties go to the lowest index.
type Solver struct {
	opts   SolverOptions
	logger *slog.Logger
}

// NewSolver creates a solver
func NewSolver(opts SolverOptions, logger *slog.Logger) *Solver {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultSolverOptions().MaxPasses
	}
	return &Solver{
		opts:   opts,
		logger: logging.Component(logger, "solver"),
	}
}

// Solve visits every index of m exactly once, starting at start and ending at
// end. start == end requests a closed loop: the returned order starts at start,
// does not repeat it, and the cost includes the return leg.
func (s *Solver) Solve(ctx context.Context, m models.CostMatrix, start, end int) (models.Tour, error) {
	if err := validateMatrix(m, start, end); err != nil {
		metrics.ObserveOptimizer("invalid")
		return models.Tour{}, err
	}

	began := time.Now()
	closed := start == end
	path := construct(m, start, end)
	if len(path) != m.Size()+boolToInt(closed) {
		metrics.ObserveOptimizer("failed")
		return models.Tour{}, fmt.Errorf("%w: placed %d of %d nodes", ErrOptimizationFailed, len(path), m.Size())
	}
	constructed := m.PathCost(path)

	passes := s.improve(ctx, m, path)

	tour := models.Tour{
		Order:  path,
		Cost:   m.PathCost(path),
		Closed: closed,
	}
	if closed {
		tour.Order = path[:len(path)-1]
	}

	metrics.ObserveOptimizer("success")
	s.logger.Debug("solved",
		"nodes", m.Size(),
		"closed", closed,
		"construction_cost", constructed,
		"cost", tour.Cost,
		"passes", passes,
		"duration", time.Since(began))
	return tour, nil
}

func validateMatrix(m models.CostMatrix, start, end int) error {
	n := m.Size()
	if n < 2 {
		return ErrInsufficientPoints
	}
	if start < 0 || start >= n || end < 0 || end >= n {
		return fmt.Errorf("%w: anchors %d,%d out of range for %d nodes", ErrInvalidMatrix, start, end, n)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMatrix, i, len(row), n)
		}
		for j, c := range row {
			if c < 0 {
				return fmt.Errorf("%w: negative cost at [%d][%d]", ErrInvalidMatrix, i, j)
			}
		}
		if row[i] != 0 {
			return fmt.Errorf("%w: non-zero diagonal at [%d][%d]", ErrInvalidMatrix, i, i)
		}
	}
	return nil
}

// construct builds the initial path by cheapest insertion. A closed loop is
// represented as a path that begins and ends at start.
func construct(m models.CostMatrix, start, end int) []int {
	n := m.Size()
	path := make([]int, 0, n+1)
	path = append(path, start, end)

	placed := make([]bool, n)
	placed[start] = true
	placed[end] = true

	remaining := n - 1
	if start != end {
		remaining--
	}

	for ; remaining > 0; remaining-- {
		bestNode, bestPos := -1, -1
		var bestDelta int64
		for k := 0; k < n; k++ {
			if placed[k] {
				continue
			}
			for pos := 1; pos < len(path); pos++ {
				prev, next := path[pos-1], path[pos]
				delta := m[prev][k] + m[k][next] - m[prev][next]
				if bestNode == -1 || delta < bestDelta {
					bestNode, bestPos, bestDelta = k, pos, delta
				}
			}
		}
		if bestNode == -1 {
			break
		}
		path = insertAt(path, bestNode, bestPos)
		placed[bestNode] = true
	}
	return path
}

// improve runs local search on the interior of path in place and returns the
// number of passes performed.
func (s *Solver) improve(ctx context.Context, m models.CostMatrix, path []int) int {
	var deadline time.Time
	if s.opts.TimeBudget > 0 {
		deadline = time.Now().Add(s.opts.TimeBudget)
	}

	passes := 0
	for passes < s.opts.MaxPasses {
		if ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		passes++

		improved := false
		if i, j, delta := bestTwoOpt(m, path); delta < 0 {
			reverse(path, i, j)
			improved = true
		}
		if from, to, delta := bestRelocate(m, path); delta < 0 {
			relocate(path, from, to)
			improved = true
		}
		if !improved {
			break
		}
	}
	return passes
}

// bestTwoOpt finds the segment reversal path[i..j] with the largest strict
// saving. Costs are asymmetric, so the reversed interior is re-summed
// incrementally rather than assumed equal.
func bestTwoOpt(m models.CostMatrix, path []int) (int, int, int64) {
	last := len(path) - 1
	bestI, bestJ := -1, -1
	var bestDelta int64

	for i := 1; i < last-1; i++ {
		var forward, backward int64
		for j := i + 1; j < last; j++ {
			forward += m[path[j-1]][path[j]]
			backward += m[path[j]][path[j-1]]

			before := m[path[i-1]][path[i]] + forward + m[path[j]][path[j+1]]
			after := m[path[i-1]][path[j]] + backward + m[path[i]][path[j+1]]
			if delta := after - before; delta < bestDelta {
				bestI, bestJ, bestDelta = i, j, delta
			}
		}
	}
	return bestI, bestJ, bestDelta
}

// bestRelocate finds the single interior node move with the largest strict
// saving. The node at from is reinserted between path[to] and path[to+1].
func bestRelocate(m models.CostMatrix, path []int) (int, int, int64) {
	last := len(path) - 1
	bestFrom, bestTo := -1, -1
	var bestDelta int64

	for from := 1; from < last; from++ {
		x := path[from]
		a, b := path[from-1], path[from+1]
		removal := m[a][x] + m[x][b] - m[a][b]

		for to := 0; to < last; to++ {
			if to == from-1 || to == from {
				continue
			}
			u, v := path[to], path[to+1]
			insertion := m[u][x] + m[x][v] - m[u][v]
			if delta := insertion - removal; delta < bestDelta {
				bestFrom, bestTo, bestDelta = from, to, delta
			}
		}
	}
	return bestFrom, bestTo, bestDelta
}

func relocate(path []int, from, to int) {
	x := path[from]
	copy(path[from:], path[from+1:])
	path = path[:len(path)-1]
	pos := to + 1
	if to > from {
		pos = to
	}
	path = path[:len(path)+1]
	copy(path[pos+1:], path[pos:])
	path[pos] = x
}

func insertAt(path []int, node, pos int) []int {
	path = append(path, 0)
	copy(path[pos+1:], path[pos:])
	path[pos] = node
	return path
}

func reverse(path []int, i, j int) {
	for i < j {
		path[i], path[j] = path[j], path[i]
		i++
		j--
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
