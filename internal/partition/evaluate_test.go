package partition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droc/internal/geo"
	"droc/internal/tour"
)

// reverseOracle visits nodes in descending order.
var reverseOracle = tour.OracleFunc(func(m tour.Matrix, _ time.Duration) tour.Result {
	n := m.Size()
	order := []int{0}
	for i := n - 1; i >= 1; i-- {
		order = append(order, i)
	}
	order = append(order, 0)
	return tour.Result{Order: order, Length: m.PathLength(order)}
})

func TestEvaluatorMapsOrderToWaypointIndices(t *testing.T) {
	pts := randomPoints(31, 8)
	ev := NewEvaluator(reverseOracle, depot, pts, time.Second, 1)

	r, err := ev.Route(context.Background(), Bucket{7, 3, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 7}, r.Order)
	want := geo.Distance(depot, pts[5]) + geo.Distance(pts[5], pts[3]) + geo.Distance(pts[3], pts[7]) + geo.Distance(pts[7], depot)
	assert.InDelta(t, want, r.DistanceM, 1e-6)
	assert.Equal(t, 1, ev.Calls())
}

func TestEvaluatorSingleWaypoint(t *testing.T) {
	p := geo.NewCoordinate(13.01, 77.65)
	ev := evaluator([]geo.Coordinate{p})
	r, err := ev.Route(context.Background(), Bucket{0})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, r.Order)
	assert.InDelta(t, 2*geo.Distance(depot, p), r.DistanceM, 1e-9)
}

func TestEvaluatorEmptyBucketMakesNoCall(t *testing.T) {
	ev := evaluator(randomPoints(32, 3))
	r, err := ev.Route(context.Background(), Bucket{})
	require.NoError(t, err)
	assert.NotNil(t, r.Order)
	assert.Empty(t, r.Order)
	assert.Zero(t, r.DistanceM)
	assert.Zero(t, ev.Calls())
}

func TestEvaluatorCountsFallbacks(t *testing.T) {
	pts := randomPoints(33, 6)
	ev := NewEvaluator(tour.NewSolver(), depot, pts, 0, 1)
	r, err := ev.Route(context.Background(), Bucket{0, 1, 2, 3, 4})
	require.NoError(t, err)
	assert.True(t, r.Fallback)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, r.Order)
	assert.Equal(t, 1, ev.Fallbacks())
}

func TestEvaluatorParallelMatchesSequential(t *testing.T) {
	pts := randomPoints(34, 30)
	s := Initial(depot, request(pts, 5, 0, 10).Waypoints(), 5)

	seq, err := evaluator(pts).Routes(context.Background(), s)
	require.NoError(t, err)
	par, err := NewEvaluator(exactOracle(), depot, pts, time.Second, 4).Routes(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, par, len(seq))
	for i := range seq {
		assert.InDelta(t, seq[i].DistanceM, par[i].DistanceM, 1e-6)
		assert.ElementsMatch(t, s[i], par[i].Order)
	}
}

func TestEvaluatorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator(exactOracle(), depot, randomPoints(35, 4), time.Second, 3).Routes(ctx, State{{0, 1}, {2, 3}})
	assert.ErrorIs(t, err, context.Canceled)
}
