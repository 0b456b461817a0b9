package tile

import (
	"fmt"
	"math"
)

// Coordinate addresses a tile cell as (row, column) within the 2^zoom grid of
// a zoom level. Row and column may be fractional: a fractional coordinate
// names a sub-tile point (a map center, for example) rather than a whole
// tile. Zoom may be fractional too, for smooth zoom tracking between levels.
//
// Coordinates are plain values; every operation returns a new Coordinate.
type Coordinate struct {
	Row    float64
	Column float64
	Zoom   float64
}

// New returns the coordinate (row, column) at the given zoom.
func New(row, column, zoom float64) Coordinate {
	return Coordinate{Row: row, Column: column, Zoom: zoom}
}

// ZoomTo rescales the coordinate to another zoom level. The named point stays
// fixed in world space: row and column are scaled by 2^(zoom - c.Zoom).
func (c Coordinate) ZoomTo(zoom float64) Coordinate {
	scale := math.Pow(2, zoom-c.Zoom)
	return Coordinate{
		Row:    c.Row * scale,
		Column: c.Column * scale,
		Zoom:   zoom,
	}
}

// ZoomBy rescales the coordinate by a zoom level delta.
func (c Coordinate) ZoomBy(delta float64) Coordinate {
	return c.ZoomTo(c.Zoom + delta)
}

// Floored truncates row and column toward zero, yielding the address of the
// whole tile cell containing the point. Zoom is unchanged.
func (c Coordinate) Floored() Coordinate {
	return Coordinate{
		Row:    math.Trunc(c.Row),
		Column: math.Trunc(c.Column),
		Zoom:   c.Zoom,
	}
}

// Clamped clamps row and column into [0, 2^zoom), the valid grid for the
// coordinate's zoom level.
func (c Coordinate) Clamped() Coordinate {
	gridSize := math.Pow(2, c.Zoom)
	return Coordinate{
		Row:    math.Max(0, math.Min(c.Row, gridSize-1)),
		Column: math.Max(0, math.Min(c.Column, gridSize-1)),
		Zoom:   c.Zoom,
	}
}

// Compare orders coordinates lexicographically by (zoom, row, column).
// The ordering is total, so Coordinate works as a sorted-set or cache key.
func (c Coordinate) Compare(other Coordinate) int {
	switch {
	case c.Zoom < other.Zoom:
		return -1
	case c.Zoom > other.Zoom:
		return 1
	case c.Row < other.Row:
		return -1
	case c.Row > other.Row:
		return 1
	case c.Column < other.Column:
		return -1
	case c.Column > other.Column:
		return 1
	default:
		return 0
	}
}

// Less reports whether c orders before other.
func (c Coordinate) Less(other Coordinate) bool {
	return c.Compare(other) < 0
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%g/%g/%g", c.Zoom, c.Column, c.Row)
}
