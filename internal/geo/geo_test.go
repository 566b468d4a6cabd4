package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSymmetricAndZero(t *testing.T) {
	bangalore := NewCoordinate(12.9716, 77.5946)
	koramangala := NewCoordinate(12.9352, 77.6245)

	d1 := Distance(bangalore, koramangala)
	d2 := Distance(koramangala, bangalore)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 0.0, Distance(bangalore, bangalore))
	// ~5 km apart
	assert.Greater(t, d1, 4000.0)
	assert.Less(t, d1, 6000.0)
}

func TestDistanceKnownPair(t *testing.T) {
	moscow := NewCoordinate(55.7558, 37.6176)
	spb := NewCoordinate(59.9343, 30.3351)

	d := Distance(moscow, spb)
	assert.InDelta(t, 634_000.0, d, 5_000.0)
}

func TestDistanceTriangleInequality(t *testing.T) {
	a := NewCoordinate(12.97, 77.59)
	b := NewCoordinate(13.05, 77.61)
	c := NewCoordinate(12.90, 77.70)

	assert.LessOrEqual(t, Distance(a, c), Distance(a, b)+Distance(b, c)+1e-6)
}

func TestBearingCardinalDirections(t *testing.T) {
	depot := NewCoordinate(0, 0)

	cases := []struct {
		name string
		p    Coordinate
		want float64
	}{
		{"north", NewCoordinate(1, 0), 0},
		{"east", NewCoordinate(0, 1), 90},
		{"south", NewCoordinate(-1, 0), 180},
		{"west", NewCoordinate(0, -1), 270},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Bearing(depot, tc.p), 1e-9)
		})
	}
}

func TestBearingRangeAndIdenticalPoints(t *testing.T) {
	depot := NewCoordinate(12.97, 77.59)
	for lat := -2.0; lat <= 2.0; lat += 0.25 {
		for lon := -2.0; lon <= 2.0; lon += 0.25 {
			b := Bearing(depot, NewCoordinate(12.97+lat, 77.59+lon))
			require.GreaterOrEqual(t, b, 0.0)
			require.Less(t, b, 360.0)
		}
	}

	first := Bearing(depot, depot)
	assert.False(t, math.IsNaN(first))
	assert.False(t, math.IsInf(first, 0))
	assert.Equal(t, first, Bearing(depot, depot))
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate(" 12.9716 , 77.5946 ")
	require.NoError(t, err)
	assert.Equal(t, 12.9716, c.Lat())
	assert.Equal(t, 77.5946, c.Lon())
	assert.Equal(t, "12.9716,77.5946", c.String())

	for _, bad := range []string{"", "12.9", "a,b", "91,0", "0,181", "1,2,3"} {
		_, err := ParseCoordinate(bad)
		assert.True(t, errors.Is(err, ErrInvalidCoordinate), "input %q", bad)
	}
}
