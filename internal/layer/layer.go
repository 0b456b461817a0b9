package layer

import (
	"errors"
	"image/color"
	"image/draw"
	"math"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/geo"
	"tileview/internal/provider"
	"tileview/internal/render"
	"tileview/internal/tile"
)

// Layer renders one tile source into a fixed-size viewport. It keeps the
// viewport center as a tile-space coordinate with fractional zoom, works out
// which tiles the viewport needs each draw cycle, asks the loader for the
// missing ones, and composites whatever is available into its surface.
//
// When a wanted tile is not cached yet, the nearest cached coarser ancestor
// is drawn scaled up in its place so the viewport is never blank. Falling
// back to finer child tiles when no ancestor is cached either would improve
// the picture further; only ancestor fallback is implemented.
//
// The draw path is single-threaded. Loader callbacks arrive on fetch workers
// and only flip the dirty flag.
type Layer struct {
	log      *zap.Logger
	provider *provider.Provider
	loader   *cache.Loader

	width     int
	height    int
	center    tile.Coordinate
	padRow    int
	padColumn int

	dirty   atomic.Bool
	visible []tile.Coordinate
	surface *render.ImageSurface
}

// New creates a layer over the given loader and subscribes to its
// cache-change notifications. Call Close before discarding the layer.
func New(loader *cache.Loader, log *zap.Logger) *Layer {
	l := &Layer{
		log:    log,
		loader: loader,
		center: tile.New(0.5, 0.5, 0),
	}
	l.dirty.Store(true)
	loader.AddListener(l)
	return l
}

// Close cancels all outstanding fetches, waits for the loader to quiesce and
// unsubscribes, guaranteeing no callback fires into a discarded layer.
func (l *Layer) Close() {
	l.loader.CancelAll()
	l.loader.JoinAll()
	l.loader.RemoveListener(l)
}

// Setup binds the layer to a provider and sizes the viewport. The initial
// zoom is chosen so one zoom-0 world roughly fills the shorter viewport
// edge.
func (l *Layer) Setup(p *provider.Provider, width, height int) {
	if p == nil {
		l.logError("Setup", "provider is not defined")
		return
	}

	l.provider = p
	l.width = width
	l.height = height

	if width > 0 && height > 0 {
		z := p.ZoomForScale(float64(min(width, height)) /
			float64(min(p.TileWidth(), p.TileHeight())))
		l.center = l.center.ZoomTo(z)
		l.surface = render.NewImageSurface(width, height)
	}
	l.dirty.Store(true)
}

// Resize changes the viewport dimensions.
func (l *Layer) Resize(width, height int) {
	l.width = width
	l.height = height
	if width > 0 && height > 0 {
		l.surface = render.NewImageSurface(width, height)
	}
	l.dirty.Store(true)
}

// SetWidth changes the viewport width only.
func (l *Layer) SetWidth(width int) {
	l.Resize(width, l.height)
}

// SetHeight changes the viewport height only.
func (l *Layer) SetHeight(height int) {
	l.Resize(l.width, height)
}

// SetPadding sets the margin, in whole tiles, added around the strictly
// visible rectangle when computing the tile set.
func (l *Layer) SetPadding(rows, columns int) {
	l.padRow = rows
	l.padColumn = columns
	l.dirty.Store(true)
}

// SetCenter positions the viewport center at a tile-space point. The
// coordinate's zoom may be fractional.
func (l *Layer) SetCenter(center tile.Coordinate) {
	l.center = center
	l.dirty.Store(true)
}

// SetCenterGeo positions the viewport center at a geographic point shown at
// the given zoom.
func (l *Layer) SetCenterGeo(center geo.Coordinate, zoom float64) {
	if l.provider == nil {
		l.logError("SetCenterGeo", "provider is not defined")
		return
	}
	l.SetCenter(l.provider.GeoToTile(center).ZoomTo(zoom))
}

func (l *Layer) Center() tile.Coordinate { return l.center }

func (l *Layer) Size() (width, height int) { return l.width, l.height }

func (l *Layer) Provider() *provider.Provider { return l.provider }

// TileCached implements cache.Listener.
func (l *Layer) TileCached(tile.Coordinate) { l.dirty.Store(true) }

// TileUncached implements cache.Listener.
func (l *Layer) TileUncached(tile.Coordinate) { l.dirty.Store(true) }

// Draw composites the current viewport and copies it into dst at (x, y) at
// native size.
func (l *Layer) Draw(dst draw.Image, x, y float64) {
	if !l.renderFrame() {
		return
	}
	l.surface.Blit(dst, x, y)
}

// DrawScaled composites the current viewport and copies it into dst at
// (x, y) scaled to w×h.
func (l *Layer) DrawScaled(dst draw.Image, x, y, w, h float64) {
	if !l.renderFrame() {
		return
	}
	l.surface.BlitScaled(dst, x, y, w, h)
}

// renderFrame recomputes the visible set if anything changed since the last
// frame, then composites every available tile into the surface, coarsest
// zoom first so finer tiles overlay their stand-ins.
func (l *Layer) renderFrame() bool {
	if l.provider == nil {
		l.logError("Draw", "provider is not defined")
		return false
	}
	if l.surface == nil || l.width <= 0 || l.height <= 0 {
		return false
	}

	if l.dirty.Swap(false) {
		l.visible = l.VisibleCoordinates()
	}

	l.surface.Begin()
	l.surface.Clear(color.Black)

	for _, coord := range l.visible {
		img, ok := l.loader.GetTile(coord)
		if !ok {
			continue
		}

		scale := math.Pow(2, l.center.Zoom-coord.Zoom)
		tileW := float64(l.provider.TileWidth()) * scale
		tileH := float64(l.provider.TileHeight()) * scale

		centerAt := l.center.ZoomTo(coord.Zoom)
		tx := float64(l.width)/2 + tileW*(coord.Column-centerAt.Column)
		ty := float64(l.height)/2 + tileH*(coord.Row-centerAt.Row)

		l.surface.DrawImage(img, tx, ty, tileW, tileH)
	}

	l.surface.End()
	return true
}

// VisibleCoordinates resolves the viewport against the cache: it returns the
// coordinates to draw now, sorted coarsest zoom first, and queues fetches
// for everything visible that is missing, nearest to the center first.
func (l *Layer) VisibleCoordinates() []tile.Coordinate {
	if l.provider == nil {
		l.logError("VisibleCoordinates", "provider is not defined")
		return nil
	}
	if l.width <= 0 || l.height <= 0 {
		return nil
	}

	// Snap a fractional center zoom to the nearest whole level for grid
	// iteration.
	baseZoom := clampInt(int(math.Round(l.center.Zoom)),
		l.provider.MinZoom(), l.provider.MaxZoom())
	gridSize := 1 << uint(baseZoom)

	// The viewport corners in tile space at the base zoom.
	corners := []tile.Coordinate{
		l.pointToTile(0, 0).ZoomTo(float64(baseZoom)),
		l.pointToTile(float64(l.width), 0).ZoomTo(float64(baseZoom)),
		l.pointToTile(0, float64(l.height)).ZoomTo(float64(baseZoom)),
		l.pointToTile(float64(l.width), float64(l.height)).ZoomTo(float64(baseZoom)),
	}

	minCol, maxCol := math.Inf(1), math.Inf(-1)
	minRow, maxRow := math.Inf(1), math.Inf(-1)
	for _, c := range corners {
		minCol = math.Min(minCol, c.Column)
		maxCol = math.Max(maxCol, c.Column)
		minRow = math.Min(minRow, c.Row)
		maxRow = math.Max(maxRow, c.Row)
	}

	colLo := clampInt(int(math.Floor(minCol))-l.padColumn, 0, gridSize)
	colHi := clampInt(int(math.Ceil(maxCol))+l.padColumn, 0, gridSize)
	rowLo := clampInt(int(math.Floor(minRow))-l.padRow, 0, gridSize)
	rowHi := clampInt(int(math.Ceil(maxRow))+l.padRow, 0, gridSize)

	drawSet := make(map[tile.Coordinate]struct{})
	requestSet := make(map[tile.Coordinate]struct{})

	for col := colLo; col < colHi; col++ {
		for row := rowLo; row < rowHi; row++ {
			coord := tile.New(float64(row), float64(col), float64(baseZoom))

			if l.loader.Has(coord) {
				drawSet[coord] = struct{}{}
				continue
			}
			requestSet[coord] = struct{}{}

			// Walk coarser levels until a cached ancestor turns up; draw
			// it as a stand-in and request everything missing on the way.
			for i := baseZoom; i >= l.provider.MinZoom(); i-- {
				ancestor := coord.ZoomTo(float64(i)).Floored().Clamped()
				if l.loader.Has(ancestor) {
					drawSet[ancestor] = struct{}{}
					break
				}
				requestSet[ancestor] = struct{}{}
			}
		}
	}

	// Requests for tiles that scrolled out of view are stale now.
	l.loader.CancelQueued()

	requests := make([]tile.Coordinate, 0, len(requestSet))
	for coord := range requestSet {
		requests = append(requests, coord)
	}
	sort.Slice(requests, func(i, j int) bool {
		return l.requestBefore(requests[i], requests[j])
	})

	for _, coord := range requests {
		err := l.loader.Start(coord, l.provider.RequestTile(coord))
		if err != nil && !errors.Is(err, cache.ErrAlreadyPending) && !errors.Is(err, cache.ErrClosed) {
			l.logError("VisibleCoordinates", err.Error())
		}
	}

	visible := make([]tile.Coordinate, 0, len(drawSet))
	for coord := range drawSet {
		visible = append(visible, coord)
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Less(visible[j])
	})
	return visible
}

// pointToTile converts a viewport pixel position to a tile-space coordinate
// at the center's zoom.
func (l *Layer) pointToTile(x, y float64) tile.Coordinate {
	coord := l.center
	if l.provider == nil {
		l.logError("pointToTile", "provider is not defined")
		return coord
	}

	coord.Column += (x - float64(l.width)/2) / float64(l.provider.TileWidth())
	coord.Row += (y - float64(l.height)/2) / float64(l.provider.TileHeight())
	return coord
}

// requestBefore orders fetch requests: tiles at a zoom close to the current
// one first, then by distance from the viewport center, then by the total
// coordinate order so the sort is stable across calls.
func (l *Layer) requestBefore(a, b tile.Coordinate) bool {
	zoomDistA := math.Abs(a.Zoom - l.center.Zoom)
	zoomDistB := math.Abs(b.Zoom - l.center.Zoom)
	if zoomDistA != zoomDistB {
		return zoomDistA < zoomDistB
	}

	centerA := l.center.ZoomTo(a.Zoom)
	centerB := l.center.ZoomTo(b.Zoom)
	distA := sq(a.Row-centerA.Row) + sq(a.Column-centerA.Column)
	distB := sq(b.Row-centerB.Row) + sq(b.Column-centerB.Column)
	if distA != distB {
		return distA < distB
	}
	return a.Less(b)
}

func (l *Layer) logError(op, msg string) {
	if l.log != nil {
		l.log.Error(msg, zap.String("op", op))
	}
}

func sq(v float64) float64 { return v * v }

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
