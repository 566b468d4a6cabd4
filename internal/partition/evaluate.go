package partition

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"droc/internal/geo"
	"droc/internal/tour"
)

// Route is the solved tour of one bucket.
type Route struct {
	// Order lists waypoint indices in visiting order; the depot is implicit
	// at both ends.
	Order     []int   `json:"order"`
	DistanceM float64 `json:"distance_m"`
	Fallback  bool    `json:"fallback,omitempty"`
}

// Evaluator prices buckets with a tour.Oracle on {depot} ∪ bucket.
// It is safe for concurrent use.
type Evaluator struct {
	oracle   tour.Oracle
	depot    geo.Coordinate
	points   []geo.Coordinate
	budget   time.Duration
	parallel int

	calls     atomic.Int64
	fallbacks atomic.Int64
}

// NewEvaluator returns an Evaluator over points (indexed by waypoint index).
// parallel > 1 lets full sweeps solve that many buckets at once.
func NewEvaluator(oracle tour.Oracle, depot geo.Coordinate, points []geo.Coordinate, budget time.Duration, parallel int) *Evaluator {
	return &Evaluator{oracle: oracle, depot: depot, points: points, budget: budget, parallel: parallel}
}

// Calls reports the number of oracle calls made.
func (e *Evaluator) Calls() int { return int(e.calls.Load()) }

// Fallbacks reports how many oracle calls returned the fallback tour.
func (e *Evaluator) Fallbacks() int { return int(e.fallbacks.Load()) }

// Route solves one bucket. An empty bucket costs nothing and makes no call.
// ctx is checked before the oracle runs; the call itself is bounded by the
// evaluator's budget.
func (e *Evaluator) Route(ctx context.Context, b Bucket) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	if len(b) == 0 {
		return Route{Order: []int{}}, nil
	}
	nodes := make([]geo.Coordinate, 0, len(b)+1)
	nodes = append(nodes, e.depot)
	for _, idx := range b {
		nodes = append(nodes, e.points[idx])
	}
	res := e.oracle.Solve(tour.FromPoints(nodes), e.budget)
	e.calls.Add(1)
	if res.Fallback {
		e.fallbacks.Add(1)
	}
	order := make([]int, 0, len(b))
	for _, node := range res.Order {
		if node == 0 {
			continue
		}
		order = append(order, b[node-1])
	}
	return Route{Order: order, DistanceM: res.Length, Fallback: res.Fallback}, nil
}

// Cost is the tour length of one bucket.
func (e *Evaluator) Cost(ctx context.Context, b Bucket) (float64, error) {
	r, err := e.Route(ctx, b)
	return r.DistanceM, err
}

// Routes solves every bucket of s. Results are positional.
func (e *Evaluator) Routes(ctx context.Context, s State) ([]Route, error) {
	out := make([]Route, len(s))
	if e.parallel <= 1 {
		for i, b := range s {
			r, err := e.Route(ctx, b)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, b := range s {
		g.Go(func() error {
			r, err := e.Route(gctx, b)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Costs returns the tour length of every bucket of s.
func (e *Evaluator) Costs(ctx context.Context, s State) ([]float64, error) {
	routes, err := e.Routes(ctx, s)
	if err != nil {
		return nil, err
	}
	costs := make([]float64, len(routes))
	for i, r := range routes {
		costs[i] = r.DistanceM
	}
	return costs, nil
}

func sum(xs []float64) float64 {
	t := 0.0
	for _, x := range xs {
		t += x
	}
	return t
}
