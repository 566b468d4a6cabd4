package tour

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"
	"gonum.org/v1/gonum/mat"

	"droc/internal/geo"
)

// ErrInvalidMatrix is returned by FromRows for non-square, asymmetric,
// negative or non-finite input.
var ErrInvalidMatrix = errors.New("invalid distance matrix")

// symTol is the largest |a(i,j)-a(j,i)| accepted by FromRows.
const symTol = 1e-9

// Matrix is a square, symmetric, non-negative distance matrix.
// Node 0 is the depot in every matrix the partitioner builds.
type Matrix struct {
	d *mat.SymDense
}

// FromPoints builds the haversine matrix over points (points[0] is node 0).
func FromPoints(points []geo.Coordinate) Matrix {
	n := len(points)
	if n == 0 {
		return Matrix{}
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, geo.Distance(points[i], points[j]))
		}
	}
	return Matrix{d: d}
}

// FromRows validates a dense row-major matrix and copies it.
func FromRows(rows [][]float64) (Matrix, error) {
	n := len(rows)
	if n == 0 {
		return Matrix{}, fmt.Errorf("from rows: empty: %w", ErrInvalidMatrix)
	}
	for i, r := range rows {
		if len(r) != n {
			return Matrix{}, fmt.Errorf("from rows: row %d has %d columns, want %d: %w", i, len(r), n, ErrInvalidMatrix)
		}
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if rows[i][i] != 0 {
			return Matrix{}, fmt.Errorf("from rows: diagonal (%d,%d)=%v: %w", i, i, rows[i][i], ErrInvalidMatrix)
		}
		for j := i + 1; j < n; j++ {
			a, b := rows[i][j], rows[j][i]
			if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
				return Matrix{}, fmt.Errorf("from rows: entry (%d,%d)=%v: %w", i, j, a, ErrInvalidMatrix)
			}
			if math.Abs(a-b) > symTol {
				return Matrix{}, fmt.Errorf("from rows: asymmetric at (%d,%d): %w", i, j, ErrInvalidMatrix)
			}
			d.SetSym(i, j, a)
		}
	}
	return Matrix{d: d}, nil
}

// Size returns the number of nodes.
func (m Matrix) Size() int {
	if m.d == nil {
		return 0
	}
	n, _ := m.d.Dims()
	return n
}

// At returns the distance between nodes i and j.
func (m Matrix) At(i, j int) float64 { return m.d.At(i, j) }

// PathLength sums consecutive legs of order.
func (m Matrix) PathLength(order []int) float64 {
	total := 0.0
	for i := 1; i < len(order); i++ {
		total += m.d.At(order[i-1], order[i])
	}
	return total
}

// Hash fingerprints the matrix content for memoisation.
func (m Matrix) Hash() uint64 {
	n := m.Size()
	buf := make([]byte, 8+8*(n*(n-1)/2))
	binary.LittleEndian.PutUint64(buf, uint64(n))
	off := 8
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(m.d.At(i, j)))
			off += 8
		}
	}
	return xxh3.Hash(buf)
}
