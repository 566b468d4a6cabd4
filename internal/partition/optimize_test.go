package partition

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droc/internal/geo"
	"droc/internal/tour"
)

// misplaced has a north waypoint (index 2) stuck in the east bucket.
func misplaced() []geo.Coordinate {
	return []geo.Coordinate{
		offset(depot, 90, 2000),
		offset(depot, 95, 2500),
		offset(depot, 5, 2200),
		offset(depot, 0, 2000),
		offset(depot, 355, 2600),
	}
}

func TestOptimizeMovesMisplacedWaypoint(t *testing.T) {
	pts := misplaced()
	s := State{{0, 1, 2}, {3, 4}}

	out, st, err := Optimize(context.Background(), s, evaluator(pts), OptimizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1}, {2, 3, 4}}, out)
	assert.Equal(t, 1, st.Moves)
	require.Len(t, st.Trace, 2)
	assert.Less(t, st.Trace[1], st.Trace[0])
	assert.Equal(t, State{{0, 1, 2}, {3, 4}}, s)
}

func TestOptimizeStrictModeRespectsBounds(t *testing.T) {
	pts := misplaced()
	s := State{{0, 1, 2}, {3, 4}}

	out, st, err := Optimize(context.Background(), s, evaluator(pts), OptimizeOptions{
		Mode:   ModeStrict,
		Bounds: Bounds{Min: 3, Max: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, s, out)
	assert.Zero(t, st.Moves)

	out, _, err = Optimize(context.Background(), s, evaluator(pts), OptimizeOptions{
		Mode:   ModeStrict,
		Bounds: Bounds{Min: 2, Max: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1}, {2, 3, 4}}, out)
}

func TestOptimizeSkipsEmptyBoundaries(t *testing.T) {
	pts := misplaced()
	ev := evaluator(pts)
	out, st, err := Optimize(context.Background(), State{{0, 1, 2}, {}, {3, 4}}, ev, OptimizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1, 2}, {}, {3, 4}}, out)
	assert.Zero(t, st.Moves)
	assert.Equal(t, 2, ev.Calls())
}

func TestOptimizeTraceNeverIncreases(t *testing.T) {
	pts := randomPoints(21, 30)
	s := Initial(depot, request(pts, 4, 5, 10).Waypoints(), 4)

	out, st, err := Optimize(context.Background(), s, evaluator(pts), OptimizeOptions{})
	require.NoError(t, err)
	requireExactCover(t, out, 30)
	requireNonIncreasing(t, st.Trace)
	assert.Equal(t, st.Moves, len(st.Trace)-1)
}

func TestOptimizeTraceMonotoneUnderNoisyOracle(t *testing.T) {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(2))
	noisy := tour.OracleFunc(func(m tour.Matrix, _ time.Duration) tour.Result {
		r := tour.Identity(m)
		mu.Lock()
		r.Length *= 1 + rng.Float64()*0.2
		mu.Unlock()
		return r
	})
	pts := randomPoints(22, 20)
	s := Initial(depot, request(pts, 4, 0, 20).Waypoints(), 4)
	ev := NewEvaluator(noisy, depot, pts, time.Second, 1)

	out, st, err := Optimize(context.Background(), s, ev, OptimizeOptions{MaxIterations: 50})
	require.NoError(t, err)
	requireExactCover(t, out, 20)
	requireNonIncreasing(t, st.Trace)
	assert.LessOrEqual(t, st.Iterations, 50)
}

func TestOptimizeReachesFixedPoint(t *testing.T) {
	pts := randomPoints(23, 24)
	s := Initial(depot, request(pts, 4, 4, 8).Waypoints(), 4)

	first, st1, err := Optimize(context.Background(), s, evaluator(pts), OptimizeOptions{})
	require.NoError(t, err)
	second, st2, err := Optimize(context.Background(), first, evaluator(pts), OptimizeOptions{})
	require.NoError(t, err)

	assert.Zero(t, st2.Moves)
	assert.Equal(t, first, second)
	assert.LessOrEqual(t, st2.Trace[len(st2.Trace)-1], st1.Trace[len(st1.Trace)-1]+1e-6)
}

func TestOptimizeObserverSeesEveryAcceptance(t *testing.T) {
	pts := misplaced()
	var totals []float64
	_, st, err := Optimize(context.Background(), State{{0, 1, 2}, {3, 4}}, evaluator(pts), OptimizeOptions{
		Observer: func(_ int, total float64, _ State) { totals = append(totals, total) },
	})
	require.NoError(t, err)
	assert.Equal(t, st.Trace, totals)
}

func TestOptimizeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Optimize(ctx, State{{0, 1, 2}, {3, 4}}, evaluator(misplaced()), OptimizeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
