package layer

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/geo"
	"tileview/internal/provider"
	"tileview/internal/tile"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// stubTransport serves one-pixel tiles. With blockAll set, every fetch waits
// on a per-coordinate gate until released. Fetch entry order is recorded.
type stubTransport struct {
	mu       sync.Mutex
	blockAll bool
	gates    map[tile.Coordinate]chan struct{}
	order    []tile.Coordinate
}

func newStubTransport(blockAll bool) *stubTransport {
	return &stubTransport{
		blockAll: blockAll,
		gates:    make(map[tile.Coordinate]chan struct{}),
	}
}

func (s *stubTransport) Fetch(ctx context.Context, coord tile.Coordinate) (image.Image, error) {
	s.mu.Lock()
	s.order = append(s.order, coord)
	var gate chan struct{}
	if s.blockAll {
		gate = s.gates[coord]
		if gate == nil {
			gate = make(chan struct{})
			s.gates[coord] = gate
		}
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (s *stubTransport) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for coord, gate := range s.gates {
		close(gate)
		delete(s.gates, coord)
	}
	s.blockAll = false
}

func (s *stubTransport) fetchOrder() []tile.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tile.Coordinate(nil), s.order...)
}

type fixture struct {
	layer     *Layer
	loader    *cache.Loader
	store     *cache.MemoryStore
	transport *stubTransport
}

func newFixture(t *testing.T, width, height int, blockAll bool) *fixture {
	t.Helper()

	transport := newStubTransport(blockAll)
	prov := provider.New(0, 18, 256, 256, geo.SphericalMercator{}, "", transport)
	store := cache.NewMemoryStore(0)
	loader := cache.NewLoader(store, 1, zap.NewNop())

	l := New(loader, zap.NewNop())
	l.Setup(prov, width, height)

	t.Cleanup(func() {
		transport.releaseAll()
		l.Close()
	})
	return &fixture{layer: l, loader: loader, store: store, transport: transport}
}

func seed(f *fixture, coord tile.Coordinate) {
	f.store.Set(coord, image.NewRGBA(image.Rect(0, 0, 1, 1)))
}

func TestSetupDerivesZoomFromViewport(t *testing.T) {
	f := newFixture(t, 512, 512, true)

	// One 256px tile doubled twice fills 512px, so the layer starts at
	// zoom 1, centered mid-world.
	c := f.layer.Center()
	assert.InDelta(t, 1, c.Zoom, 1e-12)
	assert.InDelta(t, 1, c.Row, 1e-12)
	assert.InDelta(t, 1, c.Column, 1e-12)
}

func TestVisibleCoordinatesFourTileGrid(t *testing.T) {
	f := newFixture(t, 512, 512, true)
	f.layer.SetCenter(tile.New(1.5, 1.5, 1))

	visible := f.layer.VisibleCoordinates()
	assert.Empty(t, visible, "nothing cached yet, nothing to draw")

	wanted := []tile.Coordinate{
		tile.New(0, 0, 1),
		tile.New(0, 1, 1),
		tile.New(1, 0, 1),
		tile.New(1, 1, 1),
	}
	for _, coord := range wanted {
		assert.True(t, f.loader.Pending(coord), "expected a request for %s", coord)
	}

	f.transport.releaseAll()
	for _, coord := range wanted {
		coord := coord
		require.Eventually(t, func() bool { return f.loader.Has(coord) }, waitFor, tick)
	}

	visible = f.layer.VisibleCoordinates()
	assert.Equal(t, wanted, visible, "all four tiles cached, drawn in grid order")
}

func TestRequestOrderPrefersCenterThenCoarser(t *testing.T) {
	f := newFixture(t, 512, 512, false)
	f.layer.SetCenter(tile.New(1.5, 1.5, 1))

	f.layer.VisibleCoordinates()
	require.Eventually(t, func() bool { return f.loader.PendingCount() == 0 }, waitFor, tick)

	// Four equidistant zoom-1 tiles in grid order, then the zoom-0
	// ancestor requested during the fallback walk.
	want := []tile.Coordinate{
		tile.New(0, 0, 1),
		tile.New(0, 1, 1),
		tile.New(1, 0, 1),
		tile.New(1, 1, 1),
		tile.New(0, 0, 0),
	}
	assert.Equal(t, want, f.transport.fetchOrder())
}

func TestAncestorStandsInForMissingTile(t *testing.T) {
	f := newFixture(t, 256, 256, true)
	f.layer.SetCenter(tile.New(0.5, 0.5, 1))

	ancestor := tile.New(0, 0, 0)
	missing := tile.New(0, 0, 1)
	seed(f, ancestor)

	visible := f.layer.VisibleCoordinates()

	assert.Equal(t, []tile.Coordinate{ancestor}, visible)
	assert.True(t, f.loader.Pending(missing), "the exact tile must still be requested")
	assert.False(t, f.loader.Pending(ancestor), "cached ancestor must not be re-requested")
}

func TestAncestorWalkSpansMultipleLevels(t *testing.T) {
	f := newFixture(t, 256, 256, true)
	f.layer.SetCenter(tile.New(0.5, 0.5, 3))

	seed(f, tile.New(0, 0, 0))

	visible := f.layer.VisibleCoordinates()
	assert.Equal(t, []tile.Coordinate{tile.New(0, 0, 0)}, visible)

	for _, coord := range []tile.Coordinate{
		tile.New(0, 0, 3),
		tile.New(0, 0, 2),
		tile.New(0, 0, 1),
	} {
		assert.True(t, f.loader.Pending(coord), "expected a request for %s", coord)
	}
}

func TestFinerTilesDrawAfterCoarser(t *testing.T) {
	f := newFixture(t, 512, 512, true)
	f.layer.SetCenter(tile.New(1.5, 1.5, 1))

	seed(f, tile.New(0, 0, 0))
	seed(f, tile.New(1, 1, 1))

	visible := f.layer.VisibleCoordinates()

	require.Len(t, visible, 2)
	assert.Equal(t, tile.New(0, 0, 0), visible[0], "ancestor composites first")
	assert.Equal(t, tile.New(1, 1, 1), visible[1], "finer tile overlays it")
}

func TestZeroSizeViewport(t *testing.T) {
	f := newFixture(t, 0, 0, true)

	visible := f.layer.VisibleCoordinates()
	assert.Empty(t, visible)
	assert.Equal(t, 0, f.loader.PendingCount(), "no requests for a degenerate viewport")

	// Drawing must be a harmless no-op as well.
	frame := image.NewRGBA(image.Rect(0, 0, 16, 16))
	f.layer.Draw(frame, 0, 0)
}

func TestMissingProviderIsReportedNotFatal(t *testing.T) {
	loader := cache.NewLoader(cache.NewMemoryStore(0), 1, zap.NewNop())
	l := New(loader, zap.NewNop())
	t.Cleanup(l.Close)

	assert.Nil(t, l.VisibleCoordinates())
	l.SetCenterGeo(geo.Coordinate{Lat: 10, Lon: 10}, 5)

	frame := image.NewRGBA(image.Rect(0, 0, 16, 16))
	l.Draw(frame, 0, 0)
	assert.Equal(t, 0, loader.PendingCount())
}

func TestSetCenterGeo(t *testing.T) {
	f := newFixture(t, 512, 512, true)

	f.layer.SetCenterGeo(geo.Coordinate{Lat: 0, Lon: 0}, 4)

	c := f.layer.Center()
	assert.InDelta(t, 4, c.Zoom, 1e-12)
	assert.InDelta(t, 8, c.Row, 1e-9)
	assert.InDelta(t, 8, c.Column, 1e-9)
}

func TestPaddingWidensTileRange(t *testing.T) {
	f := newFixture(t, 256, 256, true)
	f.layer.SetCenter(tile.New(2.5, 2.5, 3))

	f.layer.VisibleCoordinates()
	base := f.loader.PendingCount()

	f.layer.SetPadding(1, 1)
	f.layer.VisibleCoordinates()

	assert.Greater(t, f.loader.PendingCount(), base)
}

func TestDrawCompositesCachedTiles(t *testing.T) {
	transport := provider.NewStaticTransport(256, 256)
	prov := provider.New(0, 18, 256, 256, geo.SphericalMercator{}, "", transport)
	loader := cache.NewLoader(cache.NewMemoryStore(0), 2, zap.NewNop())

	l := New(loader, zap.NewNop())
	l.Setup(prov, 512, 512)
	l.SetCenter(tile.New(1.5, 1.5, 1))
	t.Cleanup(l.Close)

	frame := image.NewRGBA(image.Rect(0, 0, 512, 512))
	l.Draw(frame, 0, 0)

	require.Eventually(t, func() bool { return loader.PendingCount() == 0 }, waitFor, tick)
	l.Draw(frame, 0, 0)

	// Inside tile (0,0), away from its border and label.
	got := frame.RGBAAt(60, 60)
	assert.Equal(t, color.RGBA{200, 220, 255, 255}, got)

	// A scaled draw composites the same frame into a smaller destination.
	small := image.NewRGBA(image.Rect(0, 0, 128, 128))
	l.DrawScaled(small, 0, 0, 128, 128)
	assert.NotEqual(t, color.RGBA{}, small.RGBAAt(32, 32))
}

func TestTilesAppearAsFetchesComplete(t *testing.T) {
	f := newFixture(t, 512, 512, true)
	f.layer.SetCenter(tile.New(1.5, 1.5, 1))

	assert.Empty(t, f.layer.VisibleCoordinates())

	f.transport.releaseAll()
	require.Eventually(t, func() bool {
		return len(f.layer.VisibleCoordinates()) == 4
	}, waitFor, tick)
}
