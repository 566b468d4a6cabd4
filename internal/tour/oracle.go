// Package tour is the tour-construction oracle used to price a bucket of
// waypoints: given a distance matrix whose node 0 is the depot it returns a
// closed visiting order and its length within a time budget.
//
// Solve never fails. When no tour is produced before the budget runs out the
// identity tour 0,1,...,m-1,0 is returned with Fallback set, so callers never
// handle a "no tour" case. Results are best effort and, for the heuristic
// path, not deterministic across runs unless a seed is fixed.
package tour

import "time"

// Result is a closed tour over a Matrix.
type Result struct {
	// Order starts and ends at node 0 and visits every other node once.
	Order []int
	// Length is the summed leg distance of Order.
	Length float64
	// Fallback marks the identity tour returned after the budget ran out.
	Fallback bool
}

// Oracle solves a single-vehicle closed tour from node 0.
type Oracle interface {
	Solve(m Matrix, budget time.Duration) Result
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(m Matrix, budget time.Duration) Result

func (f OracleFunc) Solve(m Matrix, budget time.Duration) Result { return f(m, budget) }

// Identity returns the trivial tour 0,1,...,m-1,0 and its literal length.
func Identity(m Matrix) Result {
	n := m.Size()
	if n == 0 {
		return Result{}
	}
	order := make([]int, n+1)
	for i := 0; i < n; i++ {
		order[i] = i
	}
	order[n] = 0
	return Result{Order: order, Length: m.PathLength(order)}
}

func (r Result) clone() Result {
	out := r
	out.Order = append([]int(nil), r.Order...)
	return out
}
