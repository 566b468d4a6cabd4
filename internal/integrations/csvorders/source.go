// Package csvorders reads waypoints from a CSV export of the orders sheet.
//
// The first row is a header. A "coords" column holds "lat,lng"; separate
// "lat" and "lng" (or "lon") columns work too. "id" and "distance_m" are
// optional. Rows without coordinates are skipped.
package csvorders

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"droc/internal/geo"
	"droc/internal/integrations"
)

// Source reads one CSV file.
type Source struct {
	Path string
}

var _ integrations.Source = Source{}

func (s Source) Name() string { return "csv-orders" }

func (s Source) FetchWaypoints(ctx context.Context) ([]integrations.Waypoint, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("csvorders: %w", err)
	}
	defer f.Close()
	return Parse(ctx, f)
}

type columns struct {
	id, coords, lat, lng, dist int
}

func header(row []string) (columns, error) {
	c := columns{id: -1, coords: -1, lat: -1, lng: -1, dist: -1}
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			c.id = i
		case "coords", "coordinates", "location":
			c.coords = i
		case "lat", "latitude":
			c.lat = i
		case "lng", "lon", "longitude":
			c.lng = i
		case "distance_m", "distance":
			c.dist = i
		}
	}
	if c.coords < 0 && (c.lat < 0 || c.lng < 0) {
		return c, errors.New("csvorders: header needs a coords column or lat and lng columns")
	}
	return c, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Parse reads waypoints from r.
func Parse(ctx context.Context, r io.Reader) ([]integrations.Waypoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	first, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csvorders: read header: %w", err)
	}
	cols, err := header(first)
	if err != nil {
		return nil, err
	}

	var out []integrations.Waypoint
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvorders: line %d: %w", line, err)
		}
		raw := cell(row, cols.coords)
		if cols.coords < 0 && cell(row, cols.lat) != "" {
			raw = cell(row, cols.lat) + "," + cell(row, cols.lng)
		}
		if raw == "" {
			continue
		}
		coord, err := geo.ParseCoordinate(raw)
		if err != nil {
			return nil, fmt.Errorf("csvorders: line %d: %w", line, err)
		}
		wp := integrations.Waypoint{ID: cell(row, cols.id), Coord: coord}
		if wp.ID == "" {
			wp.ID = strconv.Itoa(line - 1)
		}
		if d := cell(row, cols.dist); d != "" {
			if wp.DistanceM, err = strconv.ParseFloat(d, 64); err != nil {
				return nil, fmt.Errorf("csvorders: line %d: distance: %w", line, err)
			}
		}
		out = append(out, wp)
	}
	return out, nil
}
