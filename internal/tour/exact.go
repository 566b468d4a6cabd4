package tour

import (
	"math"
	"time"
)

// MaxExactNodes caps ExactLimit; Held–Karp memory grows as n·2ⁿ.
const MaxExactNodes = 16

// heldKarp solves the closed tour from node 0 exactly.
//
// dp[mask*k+j] is the cheapest path that leaves the depot, visits exactly the
// non-depot nodes in mask and ends at node j+1. Masks only grow, so relaxing
// forward in increasing mask order is complete. The deadline is checked every
// 256 masks; ok is false when it expires first.
func heldKarp(m Matrix, deadline time.Time) (Result, bool) {
	n := m.Size()
	k := n - 1
	if k < 1 || k >= MaxExactNodes {
		return Result{}, false
	}
	if !time.Now().Before(deadline) {
		return Result{}, false
	}
	full := 1 << k
	dp := make([]float64, full*k)
	parent := make([]int8, full*k)
	for i := range dp {
		dp[i] = math.Inf(1)
		parent[i] = -1
	}
	for j := 0; j < k; j++ {
		dp[(1<<j)*k+j] = m.At(0, j+1)
	}

	for mask := 1; mask < full; mask++ {
		if mask&255 == 0 && !time.Now().Before(deadline) {
			return Result{}, false
		}
		for j := 0; j < k; j++ {
			if mask&(1<<j) == 0 {
				continue
			}
			cur := dp[mask*k+j]
			if math.IsInf(cur, 1) {
				continue
			}
			for nxt := 0; nxt < k; nxt++ {
				if mask&(1<<nxt) != 0 {
					continue
				}
				nm := mask | 1<<nxt
				cand := cur + m.At(j+1, nxt+1)
				if cand < dp[nm*k+nxt] {
					dp[nm*k+nxt] = cand
					parent[nm*k+nxt] = int8(j)
				}
			}
		}
	}

	last := full - 1
	best, end := math.Inf(1), -1
	for j := 0; j < k; j++ {
		total := dp[last*k+j] + m.At(j+1, 0)
		if total < best {
			best, end = total, j
		}
	}
	if end < 0 {
		return Result{}, false
	}

	order := make([]int, n+1)
	mask, j := last, end
	for pos := k; pos >= 1; pos-- {
		order[pos] = j + 1
		p := int(parent[mask*k+j])
		mask ^= 1 << j
		j = p
	}
	return Result{Order: order, Length: m.PathLength(order)}, true
}
