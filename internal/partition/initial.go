package partition

import (
	"cmp"
	"math"
	"slices"

	"droc/internal/geo"
)

// Initial builds the starting State: waypoints sorted by bearing from the
// depot, cut into k contiguous runs whose sizes differ by at most one, runs
// ordered by mean bearing and members ordered by road distance.
// k < 1 is treated as 1.
func Initial(depot geo.Coordinate, wps []Waypoint, k int) State {
	k = max(k, 1)
	n := len(wps)
	bearings := make([]float64, n)
	order := make([]int, n)
	for i, w := range wps {
		bearings[i] = geo.Bearing(depot, w.Coord)
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(bearings[a], bearings[b])
	})

	type run struct {
		members Bucket
		mean    float64
	}
	runs := make([]run, k)
	base, rem := n/k, n%k
	pos := 0
	for r := range runs {
		size := base
		if r < rem {
			size++
		}
		members := make(Bucket, 0, size)
		sum := 0.0
		for _, i := range order[pos : pos+size] {
			members = append(members, wps[i].Index)
			sum += bearings[i]
		}
		pos += size
		mean := math.Inf(1)
		if size > 0 {
			mean = sum / float64(size)
		}
		runs[r] = run{members: members, mean: mean}
	}
	// stable: equal means keep run order, empty runs go last
	slices.SortStableFunc(runs, func(a, b run) int { return cmp.Compare(a.mean, b.mean) })

	road := make(map[int]float64, n)
	for _, w := range wps {
		road[w.Index] = w.RoadDistance
	}
	state := make(State, k)
	for r, rn := range runs {
		slices.SortStableFunc(rn.members, func(a, b int) int { return cmp.Compare(road[a], road[b]) })
		state[r] = rn.members
	}
	return state
}
