package partition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceOversizeShedsToSmallerNeighbour(t *testing.T) {
	s := State{{0, 1, 2, 3, 4}, {5}, {6}}
	out, st, err := Enforce(s, Bounds{Min: 1, Max: 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1, 2}, {3, 4, 5}, {6}}, out)
	assert.Equal(t, 2, st.Moves)
	assert.Equal(t, 3, st.Passes)
	assert.False(t, st.HitCeiling)
	assert.Equal(t, State{{0, 1, 2, 3, 4}, {5}, {6}}, s, "input must not change")
}

func TestEnforceOversizeTieGoesRight(t *testing.T) {
	out, _, err := Enforce(State{{0}, {1, 2, 3, 4}, {5}}, Bounds{Min: 0, Max: 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0}, {1, 2, 3}, {4, 5}}, out)
}

func TestEnforceLastBucketShedsLeft(t *testing.T) {
	out, _, err := Enforce(State{{0}, {1, 2, 3}}, Bounds{Min: 0, Max: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0, 3}, {1, 2}}, out)
}

func TestEnforceUndersizePullsFromLargerNeighbour(t *testing.T) {
	out, _, err := Enforce(State{{0, 1, 2, 3}, {4}, {5, 6, 7}}, Bounds{Min: 2, Max: 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1, 2}, {3, 4}, {5, 6, 7}}, out)

	out, _, err = Enforce(State{{0, 1}, {2}, {3, 4, 5}}, Bounds{Min: 2, Max: 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1}, {2, 3}, {4, 5}}, out)
}

func TestEnforceInfeasibleDegrades(t *testing.T) {
	pts := randomPoints(5, 5)
	s := Initial(depot, request(pts, 3, 2, 3).Waypoints(), 3)
	require.Equal(t, []int{2, 2, 1}, s.Sizes())

	out, st, err := Enforce(s, Bounds{Min: 2, Max: 3}, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	requireExactCover(t, out, 5)
	assert.Equal(t, 1, Bounds{Min: 2, Max: 3}.OutOfBounds(out))
	assert.LessOrEqual(t, st.Passes, DefaultEnforceMaxLoops)
}

func TestEnforceLoneBucketCannotShed(t *testing.T) {
	out, st, err := Enforce(State{{0, 1, 2, 3}}, Bounds{Min: 0, Max: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, State{{0, 1, 2, 3}}, out)
	assert.Zero(t, st.Moves)
}

func TestEnforceCeilingReturnsLeastViolatingState(t *testing.T) {
	out, st, err := Enforce(State{{0, 1, 2, 3, 4}, {5}, {6}}, Bounds{Min: 1, Max: 3}, 1)
	require.NoError(t, err)
	assert.True(t, st.HitCeiling)
	assert.Equal(t, 1, st.Moves)
	assert.Equal(t, State{{0, 1, 2, 3}, {4, 5}, {6}}, out)
}

func TestEnforceRejectsMinAboveMax(t *testing.T) {
	_, _, err := Enforce(State{{0}}, Bounds{Min: 3, Max: 2}, 0)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestEnforceFeasibleInputsEndInBounds(t *testing.T) {
	cases := []struct{ n, k, lo, hi int }{
		{10, 3, 3, 4},
		{12, 4, 2, 3},
		{30, 5, 4, 8},
		{7, 7, 1, 1},
	}
	for _, c := range cases {
		pts := randomPoints(int64(c.n*c.k), c.n)
		s := Initial(depot, request(pts, c.k, c.lo, c.hi).Waypoints(), c.k)
		out, _, err := Enforce(s, Bounds{Min: c.lo, Max: c.hi}, 0)
		require.NoError(t, err)
		requireExactCover(t, out, c.n)
		assert.Zero(t, Bounds{Min: c.lo, Max: c.hi}.OutOfBounds(out), "%+v: %v", c, out.Sizes())
	}
}
