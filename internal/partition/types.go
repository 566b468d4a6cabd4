// Package partition splits delivery waypoints around a depot into a fixed
// number of size-bounded buckets and improves them by tour cost.
//
// A plan runs four phases in order: an initial bearing partition, a size
// enforcer that repairs bucket sizes, a boundary-swap optimizer that moves
// single waypoints between adjacent buckets while the summed tour length
// drops, and a final evaluation that solves one tour per bucket. An optional
// refinement phase relocates and swaps waypoints between any two buckets.
// Tour lengths come from a tour.Oracle; the package never talks to the
// network or to storage.
package partition

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"droc/internal/geo"
)

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid partition config")

// ConfigError reports a request that cannot be planned at all.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("partition: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func configError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Waypoint is one delivery stop. Index is its position in the request.
type Waypoint struct {
	Index        int
	ID           string
	Coord        geo.Coordinate
	RoadDistance float64
}

// Request is the input of a plan.
type Request struct {
	Depot geo.Coordinate
	// Points are the waypoint coordinates in request order.
	Points []geo.Coordinate
	// IDs are the caller's waypoint identifiers; when empty the coordinate
	// string is used.
	IDs []string
	// Distances are the pre-supplied road distances from the depot in meters,
	// parallel to Points.
	Distances []float64
	// K is the requested bucket count; K <= 0 derives it from Max.
	K   int
	Min int
	Max int
}

// Validate reports the first structural problem with r.
func (r Request) Validate() error {
	n := len(r.Points)
	if n == 0 {
		return configError("waypoints", "at least one waypoint is required")
	}
	if len(r.Distances) != n {
		return configError("distances", "got %d distances for %d waypoints", len(r.Distances), n)
	}
	if len(r.IDs) != 0 && len(r.IDs) != n {
		return configError("ids", "got %d ids for %d waypoints", len(r.IDs), n)
	}
	if r.Min < 0 {
		return configError("min_per_cluster", "must be >= 0, got %d", r.Min)
	}
	if r.Max < 1 {
		return configError("max_per_cluster", "must be >= 1, got %d", r.Max)
	}
	if r.Min > r.Max {
		return configError("min_per_cluster", "min %d exceeds max %d", r.Min, r.Max)
	}
	for i, d := range r.Distances {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return configError(fmt.Sprintf("distances[%d]", i), "not a finite number")
		}
	}
	for i, p := range append([]geo.Coordinate{r.Depot}, r.Points...) {
		if math.Abs(p.Lat()) > 90 || math.Abs(p.Lon()) > 180 || math.IsNaN(p.Lat()) || math.IsNaN(p.Lon()) {
			field := "depot"
			if i > 0 {
				field = fmt.Sprintf("waypoints[%d]", i-1)
			}
			return configError(field, "coordinate out of range")
		}
	}
	return nil
}

// Waypoints expands r into indexed waypoints.
func (r Request) Waypoints() []Waypoint {
	out := make([]Waypoint, len(r.Points))
	for i, p := range r.Points {
		id := p.String()
		if len(r.IDs) > 0 {
			id = r.IDs[i]
		}
		out[i] = Waypoint{Index: i, ID: id, Coord: p, RoadDistance: r.Distances[i]}
	}
	return out
}

// DeriveK returns k when positive, otherwise max(1, n/maxSize).
func DeriveK(n, k, maxSize int) int {
	if k > 0 {
		return k
	}
	if maxSize < 1 {
		return 1
	}
	return max(1, n/maxSize)
}

// Bucket is an ordered list of waypoint indices. The order is used for
// presentation and for choosing which element moves; it is not a tour.
type Bucket []int

// State is the ordered bucket sequence. Buckets keep their position for the
// whole run; only their members change. A State is never mutated in place
// once handed to another phase.
type State []Bucket

// Clone deep-copies s.
func (s State) Clone() State {
	out := make(State, len(s))
	for i, b := range s {
		out[i] = slices.Clone(b)
	}
	return out
}

// Sizes returns the member count of every bucket.
func (s State) Sizes() []int {
	out := make([]int, len(s))
	for i, b := range s {
		out[i] = len(b)
	}
	return out
}

// Len returns the total member count.
func (s State) Len() int {
	n := 0
	for _, b := range s {
		n += len(b)
	}
	return n
}

// move transfers the waypoint at s[from][fromPos] to position toPos of
// s[to] (toPos is taken after the removal). The result is a new State; only
// the two affected buckets are copied.
func (s State) move(from, fromPos, to, toPos int) State {
	out := slices.Clone(s)
	src := slices.Clone(s[from])
	wp := src[fromPos]
	src = slices.Delete(src, fromPos, fromPos+1)
	out[from] = src
	dst := make(Bucket, 0, len(s[to])+1)
	dst = append(dst, s[to][:toPos]...)
	dst = append(dst, wp)
	dst = append(dst, s[to][toPos:]...)
	out[to] = dst
	return out
}

// exchange swaps s[a][i] and s[b][j] on a new State.
func (s State) exchange(a, i, b, j int) State {
	out := slices.Clone(s)
	out[a] = slices.Clone(s[a])
	out[b] = slices.Clone(s[b])
	out[a][i], out[b][j] = s[b][j], s[a][i]
	return out
}

// Bounds is the inclusive bucket size range.
type Bounds struct {
	Min int
	Max int
}

// Violation is how far size lies outside b.
func (b Bounds) Violation(size int) int {
	switch {
	case size < b.Min:
		return b.Min - size
	case size > b.Max:
		return size - b.Max
	}
	return 0
}

// violation sums the bound violation over every bucket.
func (b Bounds) violation(s State) int {
	v := 0
	for _, bk := range s {
		v += b.Violation(len(bk))
	}
	return v
}

// OutOfBounds counts buckets whose size lies outside b.
func (b Bounds) OutOfBounds(s State) int {
	n := 0
	for _, bk := range s {
		if b.Violation(len(bk)) > 0 {
			n++
		}
	}
	return n
}

// allows reports whether a size change from before to after is acceptable
// in strict mode: the bucket must not end up further outside b.
func (b Bounds) allows(before, after int) bool {
	return b.Violation(after) <= b.Violation(before)
}

// Mode selects how the cost-driven phases treat size bounds.
type Mode string

const (
	// ModeLoose lets accepted moves leave a bucket outside the bounds.
	ModeLoose Mode = "loose"
	// ModeStrict rejects moves that push a bucket further outside the bounds.
	ModeStrict Mode = "strict"
)
