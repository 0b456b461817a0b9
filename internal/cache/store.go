package cache

import (
	"image"

	"tileview/internal/tile"
)

// Store holds decoded tile images keyed by coordinate. The store owns every
// image it holds and may evict entries at any time; callers must re-query
// rather than retain a returned image across eviction boundaries.
//
// Set and Clear report which coordinates were removed so the owner can emit
// uncached notifications for them.
type Store interface {
	Get(coord tile.Coordinate) (image.Image, bool)
	Has(coord tile.Coordinate) bool
	Set(coord tile.Coordinate, img image.Image) (evicted []tile.Coordinate)
	Clear() (evicted []tile.Coordinate)
	Len() int
}
