package geo

import "fmt"

// Coordinate is a geographic position in degrees, WGS84.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Projection maps a geographic coordinate to a normalized tile-space point at
// zoom 0, where x and y both run over [0, 1) across the projected world.
// Implementations must be stateless and safe for concurrent use.
type Projection interface {
	Project(c Coordinate) (x, y float64)
	Unproject(x, y float64) Coordinate
}
