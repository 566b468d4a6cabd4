package partition

import (
	"context"

	"droc/internal/metrics"
)

// DefaultRefineMaxIterations bounds the accepted moves of Refine.
const DefaultRefineMaxIterations = 200

// RefineStats describes one Refine run.
type RefineStats struct {
	Iterations  int       `json:"iterations"`
	Relocations int       `json:"relocations"`
	Swaps       int       `json:"swaps"`
	Trace       []float64 `json:"trace"`
}

// Refine improves s with moves between any two buckets, not only adjacent
// ones. Each iteration accepts the first improving move found, trying
// single relocations (a waypoint appended to another bucket) before pairwise
// swaps. A relocation never grows a bucket beyond opts.Bounds.Max; in
// ModeStrict it also never pushes the source further below Min. Acceptance
// uses the same MinImprovement margin as Optimize.
func Refine(ctx context.Context, s State, ev *Evaluator, opts OptimizeOptions) (State, RefineStats, error) {
	var st RefineStats
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultRefineMaxIterations
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

	r := refiner{ev: ev, opts: opts}
	for st.Iterations < opts.MaxIterations {
		st.Iterations++
		mv, err := r.relocate(ctx, s, costs, total)
		if err != nil {
			return nil, st, err
		}
		if mv != nil {
			st.Relocations++
		} else {
			if mv, err = r.swap(ctx, s, costs, total); err != nil {
				return nil, st, err
			}
			if mv == nil {
				break
			}
			st.Swaps++
		}
		s = mv.state
		costs[mv.a], costs[mv.b] = mv.costA, mv.costB
		total = sum(costs)
		st.Trace = append(st.Trace, total)
		metrics.PlanMoves.WithLabelValues("refine").Inc()
		if opts.Observer != nil {
			opts.Observer(st.Iterations, total, s)
		}
	}
	return s, st, nil
}

type pairMove struct {
	state        State
	a, b         int
	costA, costB float64
}

type refiner struct {
	ev   *Evaluator
	opts OptimizeOptions
}

// price returns the move if cand beats total by the acceptance margin.
func (r refiner) price(ctx context.Context, cand State, a, b int, costs []float64, total float64) (*pairMove, error) {
	ca, err := r.ev.Cost(ctx, cand[a])
	if err != nil {
		return nil, err
	}
	cb, err := r.ev.Cost(ctx, cand[b])
	if err != nil {
		return nil, err
	}
	if total-costs[a]-costs[b]+ca+cb < total-r.opts.MinImprovement {
		return &pairMove{state: cand, a: a, b: b, costA: ca, costB: cb}, nil
	}
	return nil, nil
}

func (r refiner) relocate(ctx context.Context, s State, costs []float64, total float64) (*pairMove, error) {
	bounds := r.opts.Bounds
	for a := range s {
		if len(s[a]) == 0 {
			continue
		}
		if r.opts.Mode == ModeStrict && !bounds.allows(len(s[a]), len(s[a])-1) {
			continue
		}
		for idx := range s[a] {
			for b := range s {
				if b == a || len(s[b])+1 > bounds.Max {
					continue
				}
				mv, err := r.price(ctx, s.move(a, idx, b, len(s[b])), a, b, costs, total)
				if err != nil || mv != nil {
					return mv, err
				}
			}
		}
	}
	return nil, nil
}

func (r refiner) swap(ctx context.Context, s State, costs []float64, total float64) (*pairMove, error) {
	for a := range s {
		for b := a + 1; b < len(s); b++ {
			for i := range s[a] {
				for j := range s[b] {
					mv, err := r.price(ctx, s.exchange(a, i, b, j), a, b, costs, total)
					if err != nil || mv != nil {
						return mv, err
					}
				}
			}
		}
	}
	return nil, nil
}
