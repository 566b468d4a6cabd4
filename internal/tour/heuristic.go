package tour

import (
	"slices"
	"time"
)

// eps is the minimum gain for a local-search move.
const eps = 1e-9

// cheapestArc extends the path from the depot by the cheapest arc to an
// unvisited node until every node is placed, then closes at the depot.
func cheapestArc(m Matrix, deadline time.Time) ([]int, bool) {
	n := m.Size()
	visited := make([]bool, n)
	visited[0] = true
	order := make([]int, 0, n+1)
	order = append(order, 0)
	cur := 0
	for step := 1; step < n; step++ {
		if !time.Now().Before(deadline) {
			return nil, false
		}
		next := -1
		for j := 1; j < n; j++ {
			if visited[j] {
				continue
			}
			if next < 0 || m.At(cur, j) < m.At(cur, next) {
				next = j
			}
		}
		visited[next] = true
		order = append(order, next)
		cur = next
	}
	return append(order, 0), true
}

// twoOpt runs first-improvement 2-opt on a closed tour in place.
func twoOpt(m Matrix, t []int, deadline time.Time) bool {
	n := len(t) - 1
	changed := false
	for improved := true; improved; {
		improved = false
		if !time.Now().Before(deadline) {
			return changed
		}
		for i := 1; i < n-1 && !improved; i++ {
			for k := i + 1; k < n; k++ {
				a, b, c, d := t[i-1], t[i], t[k], t[k+1]
				delta := m.At(a, c) + m.At(b, d) - m.At(a, b) - m.At(c, d)
				if delta < -eps {
					slices.Reverse(t[i : k+1])
					improved, changed = true, true
					break
				}
			}
		}
	}
	return changed
}

// orOpt relocates segments of one to three consecutive nodes to a cheaper
// edge of the tour. It returns the (possibly new) tour and whether it moved.
func orOpt(m Matrix, t []int, deadline time.Time) ([]int, bool) {
	n := len(t) - 1
	changed := false
	for improved := true; improved; {
		improved = false
		if !time.Now().Before(deadline) {
			return t, changed
		}
	scan:
		for segLen := 1; segLen <= 3; segLen++ {
			for i := 1; i+segLen <= n; i++ {
				first, last := t[i], t[i+segLen-1]
				prev, next := t[i-1], t[i+segLen]
				gain := m.At(prev, first) + m.At(last, next) - m.At(prev, next)
				for p := 0; p < n; p++ {
					if p >= i-1 && p <= i+segLen-1 {
						continue
					}
					u, v := t[p], t[p+1]
					cost := m.At(u, first) + m.At(last, v) - m.At(u, v)
					if cost-gain < -eps {
						t = moveSegment(t, i, segLen, p)
						improved, changed = true, true
						break scan
					}
				}
			}
		}
	}
	return t, changed
}

// moveSegment cuts t[i:i+segLen] and reinserts it between original
// positions p and p+1.
func moveSegment(t []int, i, segLen, p int) []int {
	seg := append([]int(nil), t[i:i+segLen]...)
	rest := make([]int, 0, len(t)-segLen)
	rest = append(rest, t[:i]...)
	rest = append(rest, t[i+segLen:]...)
	q := p
	if p > i {
		q = p - segLen
	}
	out := make([]int, 0, len(t))
	out = append(out, rest[:q+1]...)
	out = append(out, seg...)
	out = append(out, rest[q+1:]...)
	return out
}

// localSearch alternates 2-opt and or-opt until neither improves.
func localSearch(m Matrix, t []int, deadline time.Time) []int {
	for {
		moved := twoOpt(m, t, deadline)
		var relocated bool
		t, relocated = orOpt(m, t, deadline)
		if !moved && !relocated {
			return t
		}
		if !time.Now().Before(deadline) {
			return t
		}
	}
}
