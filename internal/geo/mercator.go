package geo

import "math"

// maxMercatorLat is the latitude at which the spherical Mercator projection
// reaches the top/bottom edge of the square world.
const maxMercatorLat = 85.05112877980659

// SphericalMercator is the standard web map projection (EPSG:3857) expressed
// in normalized tile space: the whole projected world fits in the unit square.
type SphericalMercator struct{}

func (SphericalMercator) Project(c Coordinate) (float64, float64) {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, c.Lat))
	latRad := lat * math.Pi / 180

	x := (c.Lon + 180) / 360
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
	return x, y
}

func (SphericalMercator) Unproject(x, y float64) Coordinate {
	lon := x*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y)))
	return Coordinate{
		Lat: latRad * 180 / math.Pi,
		Lon: lon,
	}
}
