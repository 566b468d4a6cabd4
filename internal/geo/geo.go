// Package geo holds the spherical-earth helpers used to place waypoints
// around a depot: great-circle distance, compass bearing and "lat,lon"
// coordinate parsing.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadiusMeters is the mean radius used by Distance.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinate is returned by ParseCoordinate for malformed input.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is an immutable (latitude, longitude) pair in degrees.
type Coordinate struct {
	p orb.Point
}

// NewCoordinate builds a Coordinate from degrees.
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{p: orb.Point{lon, lat}}
}

func (c Coordinate) Lat() float64 { return c.p.Lat() }
func (c Coordinate) Lon() float64 { return c.p.Lon() }

// Point exposes the orb representation (lon, lat).
func (c Coordinate) Point() orb.Point { return c.p }

// String renders the coordinate in the "lat,lon" wire form.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat(), 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon(), 'f', -1, 64)
}

// ParseCoordinate parses "lat,lon" with optional surrounding whitespace.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: want \"lat,lon\": %w", s, ErrInvalidCoordinate)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: latitude: %w", s, ErrInvalidCoordinate)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: longitude: %w", s, ErrInvalidCoordinate)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return Coordinate{}, fmt.Errorf("parse coordinate %q: out of range: %w", s, ErrInvalidCoordinate)
	}
	return NewCoordinate(lat, lon), nil
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial compass bearing from depot to p in [0, 360).
// Identical points yield 0.
func Bearing(depot, p Coordinate) float64 {
	b := math.Mod(orbgeo.Bearing(depot.p, p.p)+360, 360)
	if b >= 360 || math.IsNaN(b) {
		return 0
	}
	return b
}
