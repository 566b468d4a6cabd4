package partition

import "math"

// DefaultEnforceMaxLoops bounds the enforcer's repair passes.
const DefaultEnforceMaxLoops = 500

// EnforceStats describes one Enforce run.
type EnforceStats struct {
	Moves      int  `json:"moves"`
	Passes     int  `json:"passes"`
	HitCeiling bool `json:"hitCeiling"`
}

// Enforce moves waypoints between adjacent buckets until every size lies in
// b, using size as the only criterion.
//
// An oversize bucket sheds its last member to the neighbour with fewer
// members (appended on the left, prepended on the right, ties go right). An
// undersize bucket pulls from the neighbour that still has more than b.Min
// members, the larger one when both can give: the left neighbour gives its
// last member to our front, the right one its first member to our end. Every
// move restarts the scan. The run stops after a pass without moves or after
// ceiling passes, in which case the state with the smallest total violation
// seen is returned. Infeasible bounds degrade; only Min > Max is an error.
func Enforce(s State, b Bounds, ceiling int) (State, EnforceStats, error) {
	var st EnforceStats
	if b.Min > b.Max {
		return nil, st, configError("min_per_cluster", "min %d exceeds max %d", b.Min, b.Max)
	}
	if ceiling <= 0 {
		ceiling = DefaultEnforceMaxLoops
	}
	cur := s.Clone()
	best, bestV := cur, b.violation(cur)
	for st.Passes < ceiling {
		st.Passes++
		next, moved := enforceStep(cur, b)
		if !moved {
			return cur, st, nil
		}
		cur = next
		st.Moves++
		if v := b.violation(cur); v < bestV {
			best, bestV = cur, v
		}
	}
	st.HitCeiling = true
	return best, st, nil
}

// enforceStep performs the first repair move of a scan, if any.
func enforceStep(s State, b Bounds) (State, bool) {
	last := len(s) - 1
	size := func(i, missing int) int {
		if i < 0 || i > last {
			return missing
		}
		return len(s[i])
	}
	for i, bk := range s {
		n := len(bk)
		if n > b.Max && last > 0 {
			left, right := size(i-1, math.MaxInt), size(i+1, math.MaxInt)
			if left < right {
				return s.move(i, n-1, i-1, left), true
			}
			return s.move(i, n-1, i+1, 0), true
		}
		if n < b.Min {
			left, right := size(i-1, -1), size(i+1, -1)
			if left > right && left > b.Min {
				return s.move(i-1, left-1, i, 0), true
			}
			if right > b.Min {
				return s.move(i+1, 0, i, n), true
			}
		}
	}
	return s, false
}
