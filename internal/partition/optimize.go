package partition

import (
	"context"

	"droc/internal/metrics"
)

// Defaults for the cost-driven phases.
const (
	DefaultMaxIterations = 100
	// DefaultMinImprovement is the margin, in meters, a candidate total must
	// beat the current total by to be accepted.
	DefaultMinImprovement = 1e-6
)

// OptimizeOptions configures Optimize.
type OptimizeOptions struct {
	MaxIterations  int
	MinImprovement float64
	Mode           Mode
	Bounds         Bounds
	// Observer, when set, is called with the running total after the initial
	// sweep and after every accepted move.
	Observer func(iteration int, total float64, s State)
}

// OptimizeStats describes one Optimize run.
type OptimizeStats struct {
	Iterations int `json:"iterations"`
	Moves      int `json:"moves"`
	// Trace is the measured total after the initial sweep followed by the
	// total after each accepted move. It never increases.
	Trace []float64 `json:"trace"`
}

// Optimize moves single waypoints across adjacent bucket boundaries while
// that lowers the summed tour length.
//
// For each boundary (left, right), skipping ones with an empty side, two
// candidates are priced: left's last member moved to the front of right,
// and right's first member moved to the end of left. Only the two affected
// buckets are re-solved; the others keep their cached cost. The cheaper
// candidate is accepted if it beats the current total by more than
// MinImprovement, and the scan restarts from the first boundary. The run
// stops after a pass with no acceptance or after MaxIterations passes.
//
// In ModeLoose accepted moves may leave buckets outside Bounds. ModeStrict
// skips candidates that push either bucket further outside them.
func Optimize(ctx context.Context, s State, ev *Evaluator, opts OptimizeOptions) (State, OptimizeStats, error) {
	var st OptimizeStats
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.MinImprovement <= 0 {
		opts.MinImprovement = DefaultMinImprovement
	}
	costs, err := ev.Costs(ctx, s)
	if err != nil {
		return nil, st, err
	}
	total := sum(costs)
	st.Trace = append(st.Trace, total)
	if opts.Observer != nil {
		opts.Observer(0, total, s)
	}

	for st.Iterations < opts.MaxIterations {
		st.Iterations++
		mv, err := firstBoundaryMove(ctx, s, ev, costs, total, opts)
		if err != nil {
			return nil, st, err
		}
		if mv == nil {
			break
		}
		s = mv.state
		costs[mv.at], costs[mv.at+1] = mv.left, mv.right
		total = sum(costs)
		st.Moves++
		st.Trace = append(st.Trace, total)
		metrics.PlanMoves.WithLabelValues("optimize").Inc()
		if opts.Observer != nil {
			opts.Observer(st.Iterations, total, s)
		}
	}
	return s, st, nil
}

// boundaryMove is an accepted candidate and the new costs of buckets at
// and at+1.
type boundaryMove struct {
	state       State
	at          int
	left, right float64
}

// firstBoundaryMove scans boundaries left to right and returns the first
// one whose better candidate improves the total, or nil.
func firstBoundaryMove(ctx context.Context, s State, ev *Evaluator, costs []float64, total float64, opts OptimizeOptions) (*boundaryMove, error) {
	for i := 0; i+1 < len(s); i++ {
		left, right := s[i], s[i+1]
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		candidates := []State{
			s.move(i, len(left)-1, i+1, 0),
			s.move(i+1, 0, i, len(left)),
		}
		var best *boundaryMove
		bestTotal := total - opts.MinImprovement
		for _, cand := range candidates {
			if opts.Mode == ModeStrict &&
				(!opts.Bounds.allows(len(left), len(cand[i])) || !opts.Bounds.allows(len(right), len(cand[i+1]))) {
				continue
			}
			cl, err := ev.Cost(ctx, cand[i])
			if err != nil {
				return nil, err
			}
			cr, err := ev.Cost(ctx, cand[i+1])
			if err != nil {
				return nil, err
			}
			if t := total - costs[i] - costs[i+1] + cl + cr; t < bestTotal {
				best = &boundaryMove{state: cand, at: i, left: cl, right: cr}
				bestTotal = t
			}
		}
		if best != nil {
			return best, nil
		}
	}
	return nil, nil
}
