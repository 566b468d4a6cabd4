package partition

import (
	"math"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"droc/internal/geo"
	"droc/internal/tour"
)

var depot = geo.NewCoordinate(12.97, 77.59)

// offset places a point roughly meters away from c at the given bearing.
func offset(c geo.Coordinate, bearing, meters float64) geo.Coordinate {
	rad := bearing * math.Pi / 180
	dLat := meters * math.Cos(rad) / 111_320
	dLon := meters * math.Sin(rad) / (111_320 * math.Cos(c.Lat()*math.Pi/180))
	return geo.NewCoordinate(c.Lat()+dLat, c.Lon()+dLon)
}

func exactOracle() tour.Oracle {
	return &tour.Solver{ExactLimit: tour.MaxExactNodes, Perturbations: 8, Seed: 1}
}

func evaluator(points []geo.Coordinate) *Evaluator {
	return NewEvaluator(exactOracle(), depot, points, time.Second, 1)
}

func request(points []geo.Coordinate, k, lo, hi int) Request {
	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = geo.Distance(depot, p)
	}
	return Request{Depot: depot, Points: points, Distances: dist, K: k, Min: lo, Max: hi}
}

func randomPoints(seed int64, n int) []geo.Coordinate {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]geo.Coordinate, n)
	for i := range pts {
		pts[i] = offset(depot, rng.Float64()*360, 500+rng.Float64()*8000)
	}
	return pts
}

// requireExactCover asserts every index 0..n-1 appears exactly once.
func requireExactCover(t *testing.T, s State, n int) {
	t.Helper()
	var all []int
	for _, b := range s {
		all = append(all, b...)
	}
	slices.Sort(all)
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, all)
}

func requireNonIncreasing(t *testing.T, trace []float64) {
	t.Helper()
	for i := 1; i < len(trace); i++ {
		require.LessOrEqual(t, trace[i], trace[i-1], "trace rose at step %d: %v", i, trace)
	}
}
