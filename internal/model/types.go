package model

import (
	"fmt"
	"math"
	"time"

	"droc/internal/geo"
	"droc/internal/partition"
)

// PlanRequest is the planning payload shared by the CLI and POST /v1/plans.
// The snake_case fields are the script-era wire names and stay stable.
type PlanRequest struct {
	Depot         string    `json:"depot"`
	Waypoints     []string  `json:"waypoints"`
	Distances     []float64 `json:"distances"`
	NumClusters   int       `json:"num_clusters"`
	MinPerCluster int       `json:"min_per_cluster"`
	MaxPerCluster int       `json:"max_per_cluster"`

	TenantID       string `json:"tenantId,omitempty"`
	PlanDate       string `json:"planDate,omitempty"`
	TimeBudgetMs   int    `json:"timeBudgetMs,omitempty"`
	MaxIterations  int    `json:"maxIterations,omitempty"`
	Strict         *bool  `json:"strict,omitempty"`
	Refine         *bool  `json:"refine,omitempty"`
	CallbackURL    string `json:"callbackUrl,omitempty"`
	CallbackSecret string `json:"callbackSecret,omitempty"`
}

// ToPartition parses coordinates and builds the core request. Waypoint IDs
// are the strings exactly as sent.
func (r PlanRequest) ToPartition() (partition.Request, error) {
	depot, err := geo.ParseCoordinate(r.Depot)
	if err != nil {
		return partition.Request{}, &partition.ConfigError{Field: "depot", Reason: err.Error()}
	}
	points := make([]geo.Coordinate, len(r.Waypoints))
	for i, s := range r.Waypoints {
		p, err := geo.ParseCoordinate(s)
		if err != nil {
			return partition.Request{}, &partition.ConfigError{Field: fmt.Sprintf("waypoints[%d]", i), Reason: err.Error()}
		}
		points[i] = p
	}
	req := partition.Request{
		Depot:     depot,
		Points:    points,
		IDs:       append([]string(nil), r.Waypoints...),
		Distances: append([]float64(nil), r.Distances...),
		K:         r.NumClusters,
		Min:       r.MinPerCluster,
		Max:       r.MaxPerCluster,
	}
	return req, req.Validate()
}

// Options applies the request's per-call overrides to base.
func (r PlanRequest) Options(base partition.Options) partition.Options {
	if r.TimeBudgetMs > 0 {
		base.Budget = time.Duration(r.TimeBudgetMs) * time.Millisecond
	}
	if r.MaxIterations > 0 {
		base.MaxIterations = r.MaxIterations
	}
	if r.Strict != nil {
		base.Mode = partition.ModeLoose
		if *r.Strict {
			base.Mode = partition.ModeStrict
		}
	}
	if r.Refine != nil {
		base.Refine = *r.Refine
	}
	return base
}

type TSPRoute struct {
	Order     []int   `json:"order"`
	DistanceM float64 `json:"distance_m"`
}

type Meta struct {
	RuntimeSeconds float64 `json:"runtime_seconds"`
}

// PlanResult is the planning response. Distances are whole meters and the
// total is the sum of the rounded per-route distances.
type PlanResult struct {
	PlanID    string `json:"planId,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`
	PlanDate  string `json:"planDate,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`

	Clusters       [][]string       `json:"clusters"`
	ClusterIDs     [][]int          `json:"cluster_ids"`
	TSPRoutes      []TSPRoute       `json:"tsp_routes"`
	TotalDistanceM float64          `json:"total_distance_m"`
	Stats          *partition.Stats `json:"stats,omitempty"`
	Meta           *Meta            `json:"_meta,omitempty"`
}

// FromPlan shapes a finished plan for the wire.
func FromPlan(p *partition.Plan) PlanResult {
	out := PlanResult{
		Clusters:   make([][]string, len(p.Buckets)),
		ClusterIDs: make([][]int, len(p.Buckets)),
		TSPRoutes:  make([]TSPRoute, len(p.Buckets)),
	}
	for i, b := range p.Buckets {
		out.Clusters[i] = append([]string{}, b.IDs...)
		out.ClusterIDs[i] = append([]int{}, b.Indices...)
		d := math.Round(b.Route.DistanceM)
		out.TSPRoutes[i] = TSPRoute{Order: append([]int{}, b.Route.Order...), DistanceM: d}
		out.TotalDistanceM += d
	}
	stats := p.Stats
	out.Stats = &stats
	out.Meta = &Meta{RuntimeSeconds: float64(p.Stats.ElapsedMs) / 1000}
	return out
}

// Sizes returns the member count of every cluster.
func (r PlanResult) Sizes() []int {
	out := make([]int, len(r.ClusterIDs))
	for i, c := range r.ClusterIDs {
		out[i] = len(c)
	}
	return out
}

// PlanSummary is a list entry for GET /v1/plans.
type PlanSummary struct {
	PlanID         string  `json:"planId"`
	TenantID       string  `json:"tenantId,omitempty"`
	PlanDate       string  `json:"planDate,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	Clusters       int     `json:"clusters"`
	Waypoints      int     `json:"waypoints"`
	TotalDistanceM float64 `json:"total_distance_m"`
}

// Summary condenses r for listings.
func (r PlanResult) Summary() PlanSummary {
	n := 0
	for _, c := range r.ClusterIDs {
		n += len(c)
	}
	return PlanSummary{
		PlanID:         r.PlanID,
		TenantID:       r.TenantID,
		PlanDate:       r.PlanDate,
		CreatedAt:      r.CreatedAt,
		Clusters:       len(r.ClusterIDs),
		Waypoints:      n,
		TotalDistanceM: r.TotalDistanceM,
	}
}

// PlanMetrics is the per-plan record behind /v1/admin/plan-metrics.
type PlanMetrics struct {
	PlanID          string  `json:"planId"`
	TenantID        string  `json:"tenantId,omitempty"`
	PlanDate        string  `json:"planDate,omitempty"`
	Mode            string  `json:"mode"`
	K               int     `json:"k"`
	EnforceMoves    int     `json:"enforceMoves"`
	OptimizeMoves   int     `json:"optimizeMoves"`
	RefineMoves     int     `json:"refineMoves"`
	OracleCalls     int     `json:"oracleCalls"`
	OracleFallbacks int     `json:"oracleFallbacks"`
	SizeViolations  int     `json:"sizeViolations"`
	InitialCostM    float64 `json:"initialCostM"`
	FinalCostM      float64 `json:"finalCostM"`
	ElapsedMs       int64   `json:"elapsedMs"`
}

// MetricsFor extracts the stored metrics of a result.
func MetricsFor(r PlanResult) PlanMetrics {
	m := PlanMetrics{PlanID: r.PlanID, TenantID: r.TenantID, PlanDate: r.PlanDate, FinalCostM: r.TotalDistanceM}
	if s := r.Stats; s != nil {
		m.Mode = string(s.Mode)
		m.K = s.K
		m.EnforceMoves = s.Enforce.Moves
		m.OptimizeMoves = s.Optimize.Moves
		if s.Refine != nil {
			m.RefineMoves = s.Refine.Relocations + s.Refine.Swaps
		}
		m.OracleCalls = s.OracleCalls
		m.OracleFallbacks = s.OracleFallbacks
		m.SizeViolations = s.SizeViolations
		if len(s.Optimize.Trace) > 0 {
			m.InitialCostM = s.Optimize.Trace[0]
		}
		m.ElapsedMs = s.ElapsedMs
	}
	return m
}

// OptimizerConfig is a tenant's stored override of the planner defaults.
// Zero fields keep the service default.
type OptimizerConfig struct {
	TimeBudgetMs        int     `json:"timeBudgetMs,omitempty"`
	EnforceMaxLoops     int     `json:"enforceMaxLoops,omitempty"`
	MaxIterations       int     `json:"maxIterations,omitempty"`
	MinImprovement      float64 `json:"minImprovement,omitempty"`
	Strict              *bool   `json:"strict,omitempty"`
	Refine              *bool   `json:"refine,omitempty"`
	RefineMaxIterations int     `json:"refineMaxIterations,omitempty"`
}

// Apply overlays c on base.
func (c OptimizerConfig) Apply(base partition.Options) partition.Options {
	if c.TimeBudgetMs > 0 {
		base.Budget = time.Duration(c.TimeBudgetMs) * time.Millisecond
	}
	if c.EnforceMaxLoops > 0 {
		base.EnforceMaxLoops = c.EnforceMaxLoops
	}
	if c.MaxIterations > 0 {
		base.MaxIterations = c.MaxIterations
	}
	if c.MinImprovement > 0 {
		base.MinImprovement = c.MinImprovement
	}
	if c.Strict != nil {
		base.Mode = partition.ModeLoose
		if *c.Strict {
			base.Mode = partition.ModeStrict
		}
	}
	if c.Refine != nil {
		base.Refine = *c.Refine
	}
	if c.RefineMaxIterations > 0 {
		base.RefineMaxIterations = c.RefineMaxIterations
	}
	return base
}

// EffectiveConfig renders options for GET /v1/optimizer/config.
func EffectiveConfig(o partition.Options) OptimizerConfig {
	strict := o.Mode == partition.ModeStrict
	refine := o.Refine
	return OptimizerConfig{
		TimeBudgetMs:        int(o.Budget / time.Millisecond),
		EnforceMaxLoops:     o.EnforceMaxLoops,
		MaxIterations:       o.MaxIterations,
		MinImprovement:      o.MinImprovement,
		Strict:              &strict,
		Refine:              &refine,
		RefineMaxIterations: o.RefineMaxIterations,
	}
}
