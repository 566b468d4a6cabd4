// Package integrations adapts external order feeds into plan requests.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"math"

	"droc/internal/geo"
	"droc/internal/model"
)

// Source defines the minimal interface for order feeds that can supply the
// waypoints of a plan.
type Source interface {
	Name() string
	FetchWaypoints(ctx context.Context) ([]Waypoint, error)
}

// Waypoint is one delivery stop read from a feed.
type Waypoint struct {
	ID    string
	Coord geo.Coordinate
	// DistanceM is the road distance from the depot; 0 means the feed did
	// not provide one.
	DistanceM float64
}

// ErrNoWaypoints is returned when a feed yields nothing to plan.
var ErrNoWaypoints = errors.New("integrations: no waypoints")

// Shape is the clustering part of a plan request.
type Shape struct {
	Depot         geo.Coordinate
	NumClusters   int
	MinPerCluster int
	MaxPerCluster int
}

// BuildRequest turns feed waypoints into a plan request. Missing road
// distances are estimated with the great-circle distance from the depot.
func BuildRequest(wps []Waypoint, shape Shape) (model.PlanRequest, error) {
	if len(wps) == 0 {
		return model.PlanRequest{}, ErrNoWaypoints
	}
	req := model.PlanRequest{
		Depot:         shape.Depot.String(),
		Waypoints:     make([]string, len(wps)),
		Distances:     make([]float64, len(wps)),
		NumClusters:   shape.NumClusters,
		MinPerCluster: shape.MinPerCluster,
		MaxPerCluster: shape.MaxPerCluster,
	}
	for i, w := range wps {
		d := w.DistanceM
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return model.PlanRequest{}, fmt.Errorf("integrations: waypoint %q: bad distance %v", w.ID, d)
		}
		if d == 0 {
			d = math.Round(geo.Distance(shape.Depot, w.Coord))
		}
		req.Waypoints[i] = w.Coord.String()
		req.Distances[i] = d
	}
	return req, nil
}
