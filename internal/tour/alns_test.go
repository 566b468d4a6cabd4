package tour

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveAndReinsertKeepsTourValid(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	m := FromPoints(randomPoints(rng, 12))
	tour, ok := cheapestArc(m, time.Now().Add(time.Second))
	require.True(t, ok)

	for _, repair := range []func(Matrix, []int, []int) []int{greedyInsert, regretInsert} {
		removed := randomRemoval(tour, 4, rng)
		require.Len(t, removed, 4)
		assert.NotContains(t, removed, 0)

		partial := removeNodes(tour, removed)
		require.Len(t, partial, len(tour)-4)
		assert.Equal(t, 0, partial[0])
		assert.Equal(t, 0, partial[len(partial)-1])

		full := repair(m, partial, removed)
		requireClosedTour(t, Result{Order: full}, 12)
	}
}

func TestShawRemovalTakesNearestNeighbours(t *testing.T) {
	// nodes on a line: 0 . 1 2 3 . . . 4
	m, err := FromRows([][]float64{
		{0, 1, 2, 3, 9},
		{1, 0, 1, 2, 8},
		{2, 1, 0, 1, 7},
		{3, 2, 1, 0, 6},
		{9, 8, 7, 6, 0},
	})
	require.NoError(t, err)
	tour := []int{0, 1, 2, 3, 4, 0}
	for seed := int64(0); seed < 10; seed++ {
		got := shawRemoval(m, tour, 2, rand.New(rand.NewSource(seed)))
		require.Len(t, got, 2)
		slices.Sort(got)
		// whichever node seeds the removal, its nearest interior neighbour goes with it
		assert.Contains(t, [][]int{{1, 2}, {2, 3}, {3, 4}}, got)
	}
}

func TestRegretInsertPrefersCostlyChoices(t *testing.T) {
	m, err := FromRows([][]float64{
		{0, 1, 1, 5},
		{1, 0, 2, 5},
		{1, 2, 0, 5},
		{5, 5, 5, 0},
	})
	require.NoError(t, err)
	full := regretInsert(m, []int{0, 1, 0}, []int{2, 3})
	requireClosedTour(t, Result{Order: full}, 4)
}

func TestSelectOpHonoursWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for range 100 {
		assert.Equal(t, 1, selectOp([]float64{0, 1}, rng))
	}
	assert.Equal(t, 0, selectOp([]float64{0, 0}, rng))
}

func TestALNSNeverWorsensSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	m := FromPoints(randomPoints(rng, 25))
	seed, ok := cheapestArc(m, time.Now().Add(time.Second))
	require.True(t, ok)
	seedLen := m.PathLength(seed)

	best, st := alns(m, seed, time.Now().Add(time.Second), 40, rand.New(rand.NewSource(3)))
	requireClosedTour(t, Result{Order: best}, 25)
	assert.LessOrEqual(t, m.PathLength(best), seedLen+1e-9)
	assert.Positive(t, st.Iterations)
	assert.Equal(t, st.Iterations, st.RemovalSelects[0]+st.RemovalSelects[1])
	assert.Equal(t, st.Iterations, st.InsertSelects[0]+st.InsertSelects[1])
	// the seed slice is left untouched
	assert.Equal(t, seedLen, m.PathLength(seed))
}
