package partition

import (
	"context"
	"errors"
	"time"

	"droc/internal/logging"
	"droc/internal/metrics"
	"droc/internal/tour"
)

// DefaultBudget is the per-call oracle time budget.
const DefaultBudget = time.Second

// Options tunes a Planner. Zero fields take the package defaults.
type Options struct {
	// Budget bounds each oracle call.
	Budget              time.Duration
	EnforceMaxLoops     int
	MaxIterations       int
	MinImprovement      float64
	Mode                Mode
	Refine              bool
	RefineMaxIterations int
	// Parallel is the number of buckets solved at once in full sweeps.
	Parallel int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Budget:              DefaultBudget,
		EnforceMaxLoops:     DefaultEnforceMaxLoops,
		MaxIterations:       DefaultMaxIterations,
		MinImprovement:      DefaultMinImprovement,
		Mode:                ModeLoose,
		RefineMaxIterations: DefaultRefineMaxIterations,
		Parallel:            1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Budget <= 0 {
		o.Budget = d.Budget
	}
	if o.EnforceMaxLoops <= 0 {
		o.EnforceMaxLoops = d.EnforceMaxLoops
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.MinImprovement <= 0 {
		o.MinImprovement = d.MinImprovement
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.RefineMaxIterations <= 0 {
		o.RefineMaxIterations = d.RefineMaxIterations
	}
	if o.Parallel <= 0 {
		o.Parallel = d.Parallel
	}
	return o
}

// Phase names a planning step in progress events.
type Phase string

const (
	PhaseInitial  Phase = "initial"
	PhaseEnforce  Phase = "enforce"
	PhaseOptimize Phase = "optimize"
	PhaseRefine   Phase = "refine"
	PhaseEvaluate Phase = "evaluate"
)

// Event reports progress. TotalDistanceM is zero before the first tour sweep.
type Event struct {
	Phase          Phase   `json:"phase"`
	Iteration      int     `json:"iteration"`
	TotalDistanceM float64 `json:"total_distance_m"`
	Sizes          []int   `json:"sizes"`
}

// BucketPlan is one bucket of a finished plan.
type BucketPlan struct {
	IDs     []string `json:"ids"`
	Indices []int    `json:"indices"`
	Route   Route    `json:"route"`
}

// Stats summarises how a plan was produced.
type Stats struct {
	Mode            Mode          `json:"mode"`
	K               int           `json:"k"`
	Enforce         EnforceStats  `json:"enforce"`
	Optimize        OptimizeStats `json:"optimize"`
	Refine          *RefineStats  `json:"refine,omitempty"`
	OracleCalls     int           `json:"oracleCalls"`
	OracleFallbacks int           `json:"oracleFallbacks"`
	SizeViolations  int           `json:"sizeViolations"`
	ElapsedMs       int64         `json:"elapsedMs"`
}

// Plan is the result of Planner.Plan.
type Plan struct {
	Buckets        []BucketPlan `json:"buckets"`
	TotalDistanceM float64      `json:"total_distance_m"`
	Stats          Stats        `json:"stats"`
}

// Sizes returns the member count of every bucket.
func (p *Plan) Sizes() []int {
	out := make([]int, len(p.Buckets))
	for i, b := range p.Buckets {
		out[i] = len(b.Indices)
	}
	return out
}

// Planner runs the partition pipeline against a tour oracle.
type Planner struct {
	oracle tour.Oracle
	opts   Options
	log    logging.Logger
}

// NewPlanner returns a Planner. A nil logger discards output.
func NewPlanner(oracle tour.Oracle, opts Options, log logging.Logger) *Planner {
	return &Planner{oracle: oracle, opts: opts.withDefaults(), log: logging.OrNop(log)}
}

// Options returns the effective options.
func (p *Planner) Options() Options { return p.opts }

// WithOptions returns a Planner sharing p's oracle and logger.
func (p *Planner) WithOptions(o Options) *Planner {
	return &Planner{oracle: p.oracle, opts: o.withDefaults(), log: p.log}
}

// Plan partitions req. observe, when non-nil, receives progress events on
// the calling goroutine. The context is checked between oracle calls; a
// cancelled plan returns the context error and no partial result.
func (p *Planner) Plan(ctx context.Context, req Request, observe func(Event)) (*Plan, error) {
	start := time.Now()
	plan, err := p.plan(ctx, req, observe)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrInvalidConfig):
		outcome = "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	metrics.PlanDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if plan != nil {
		plan.Stats.ElapsedMs = time.Since(start).Milliseconds()
	}
	return plan, err
}

func (p *Planner) plan(ctx context.Context, req Request, observe func(Event)) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit := func(phase Phase, iter int, total float64, s State) {
		if observe != nil {
			observe(Event{Phase: phase, Iteration: iter, TotalDistanceM: total, Sizes: s.Sizes()})
		}
	}
	opts := p.opts
	bounds := Bounds{Min: req.Min, Max: req.Max}
	k := DeriveK(len(req.Points), req.K, req.Max)
	wps := req.Waypoints()

	s := Initial(req.Depot, wps, k)
	emit(PhaseInitial, 0, 0, s)

	s, est, err := Enforce(s, bounds, opts.EnforceMaxLoops)
	if err != nil {
		return nil, err
	}
	metrics.PlanMoves.WithLabelValues("enforce").Add(float64(est.Moves))
	if est.HitCeiling {
		p.log.Warn("size enforcer hit its pass ceiling", "passes", est.Passes, "sizes", s.Sizes())
	}
	emit(PhaseEnforce, est.Passes, 0, s)

	ev := NewEvaluator(p.oracle, req.Depot, req.Points, opts.Budget, opts.Parallel)
	oo := OptimizeOptions{
		MaxIterations:  opts.MaxIterations,
		MinImprovement: opts.MinImprovement,
		Mode:           opts.Mode,
		Bounds:         bounds,
		Observer: func(iter int, total float64, cur State) {
			emit(PhaseOptimize, iter, total, cur)
		},
	}
	s, ost, err := Optimize(ctx, s, ev, oo)
	if err != nil {
		return nil, err
	}
	p.log.Debug("boundary swaps done", "moves", ost.Moves, "iterations", ost.Iterations, "total_m", ost.Trace[len(ost.Trace)-1])

	var rst *RefineStats
	if opts.Refine {
		ro := oo
		ro.MaxIterations = opts.RefineMaxIterations
		ro.Observer = func(iter int, total float64, cur State) {
			emit(PhaseRefine, iter, total, cur)
		}
		var st RefineStats
		if s, st, err = Refine(ctx, s, ev, ro); err != nil {
			return nil, err
		}
		rst = &st
	}

	routes, err := ev.Routes(ctx, s)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Buckets: make([]BucketPlan, len(s))}
	for i, b := range s {
		ids := make([]string, len(b))
		for j, idx := range b {
			ids[j] = wps[idx].ID
		}
		plan.Buckets[i] = BucketPlan{IDs: ids, Indices: append([]int(nil), b...), Route: routes[i]}
		plan.TotalDistanceM += routes[i].DistanceM
	}
	plan.Stats = Stats{
		Mode:            opts.Mode,
		K:               k,
		Enforce:         est,
		Optimize:        ost,
		Refine:          rst,
		OracleCalls:     ev.Calls(),
		OracleFallbacks: ev.Fallbacks(),
		SizeViolations:  bounds.OutOfBounds(s),
	}
	emit(PhaseEvaluate, 0, plan.TotalDistanceM, s)
	if plan.Stats.SizeViolations > 0 {
		p.log.Info("plan has buckets outside size bounds", "violations", plan.Stats.SizeViolations, "sizes", s.Sizes(), "min", req.Min, "max", req.Max)
	}
	return plan, nil
}
