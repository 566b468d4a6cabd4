package tour

import (
	"math/rand"
	"sync/atomic"
	"time"

	"droc/internal/metrics"
)

// Defaults for Solver.
const (
	DefaultExactLimit    = 12
	DefaultPerturbations = 64
)

// Solver is the built-in Oracle: exact Held–Karp on small matrices,
// cheapest-arc construction improved by adaptive large neighbourhood search
// with 2-opt/or-opt polishing on larger ones.
type Solver struct {
	// ExactLimit is the largest node count (depot included) solved exactly.
	// Values above MaxExactNodes are clamped; 0 disables the exact path.
	ExactLimit int
	// Perturbations bounds consecutive destroy-and-repair rounds without a
	// new best tour per call.
	Perturbations int
	// Seed fixes the kick sequence; 0 seeds from the clock.
	Seed int64

	calls atomic.Int64
}

// NewSolver returns a Solver with default limits.
func NewSolver() *Solver {
	return &Solver{ExactLimit: DefaultExactLimit, Perturbations: DefaultPerturbations}
}

// Solve implements Oracle.
func (s *Solver) Solve(m Matrix, budget time.Duration) Result {
	start := time.Now()
	res, method := s.solve(m, start.Add(budget))
	metrics.OracleCalls.WithLabelValues(method).Inc()
	metrics.OracleDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return res
}

func (s *Solver) solve(m Matrix, deadline time.Time) (Result, string) {
	n := m.Size()
	if n <= 3 {
		// every closed tour over three nodes has the same length
		return Identity(m), "trivial"
	}

	limit := min(s.ExactLimit, MaxExactNodes)
	if n <= limit {
		if res, ok := heldKarp(m, deadline); ok {
			return res, "exact"
		}
		return fallback(m), "fallback"
	}

	order, ok := cheapestArc(m, deadline)
	if !ok {
		return fallback(m), "fallback"
	}
	order, st := alns(m, order, deadline, s.Perturbations, s.rng())
	st.observe()
	return Result{Order: order, Length: m.PathLength(order)}, "heuristic"
}

func (s *Solver) rng() *rand.Rand {
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed + s.calls.Add(1)))
}

func fallback(m Matrix) Result {
	r := Identity(m)
	r.Fallback = true
	return r
}
