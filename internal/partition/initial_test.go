package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droc/internal/geo"
)

func TestInitialSixWaypointsTwoBuckets(t *testing.T) {
	bearings := []float64{250, 10, 190, 130, 310, 70}
	pts := make([]geo.Coordinate, len(bearings))
	for i, b := range bearings {
		pts[i] = offset(depot, b, 2000+float64(i)*100)
	}
	req := request(pts, 2, 2, 4)

	s := Initial(depot, req.Waypoints(), 2)
	require.Len(t, s, 2)
	assert.Equal(t, []int{3, 3}, s.Sizes())
	assert.ElementsMatch(t, []int{1, 5, 3}, s[0])
	assert.ElementsMatch(t, []int{2, 0, 4}, s[1])

	maxFirst := 0.0
	for _, idx := range s[0] {
		maxFirst = max(maxFirst, geo.Bearing(depot, pts[idx]))
	}
	for _, idx := range s[1] {
		assert.Greater(t, geo.Bearing(depot, pts[idx]), maxFirst)
	}

	enforced, st, err := Enforce(s, Bounds{Min: 2, Max: 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, s, enforced)
	assert.Zero(t, st.Moves)
}

func TestInitialSortsMembersByRoadDistance(t *testing.T) {
	pts := []geo.Coordinate{
		offset(depot, 20, 3000),
		offset(depot, 25, 1000),
		offset(depot, 30, 2000),
	}
	req := request(pts, 1, 0, 3)
	req.Distances = []float64{300, 100, 200}

	s := Initial(depot, req.Waypoints(), 1)
	assert.Equal(t, State{{1, 2, 0}}, s)
}

func TestInitialRunSizesDifferByAtMostOne(t *testing.T) {
	pts := randomPoints(3, 23)
	s := Initial(depot, request(pts, 5, 0, 10).Waypoints(), 5)
	assert.Equal(t, []int{5, 5, 5, 4, 4}, s.Sizes())
	requireExactCover(t, s, 23)
}

func TestInitialMoreBucketsThanWaypoints(t *testing.T) {
	pts := randomPoints(4, 2)
	s := Initial(depot, request(pts, 4, 0, 1).Waypoints(), 4)
	assert.Equal(t, []int{1, 1, 0, 0}, s.Sizes())

	s = Initial(depot, request(pts, 0, 0, 1).Waypoints(), 0)
	assert.Equal(t, []int{2}, s.Sizes())
}

func TestInitialBucketsOrderedByMeanBearing(t *testing.T) {
	pts := randomPoints(9, 40)
	s := Initial(depot, request(pts, 6, 0, 10).Waypoints(), 6)
	prev := -1.0
	for _, b := range s {
		mean := 0.0
		for _, idx := range b {
			mean += geo.Bearing(depot, pts[idx])
		}
		mean /= float64(len(b))
		assert.Greater(t, mean, prev)
		prev = mean
	}
}
