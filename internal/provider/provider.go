package provider

import (
	"context"
	"image"
	"math"

	"github.com/google/uuid"

	"tileview/internal/geo"
	"tileview/internal/tile"
)

// Transport fetches and decodes the pixel payload for one tile. It is the
// only part of the provider that touches the network (or disk, or a local
// generator). Fetch must honor ctx cancellation and return the decoded image
// or an error; it must not retain the image after returning it.
type Transport interface {
	Fetch(ctx context.Context, coord tile.Coordinate) (image.Image, error)
}

// Provider is the immutable description of one tile source: its zoom range,
// tile pixel size, projection and attribution, plus the transport used to
// fetch tiles. All fields are fixed at construction; a Provider may be shared
// freely between layers.
type Provider struct {
	minZoom     int
	maxZoom     int
	tileWidth   int
	tileHeight  int
	projection  geo.Projection
	attribution string
	transport   Transport
}

// New creates a Provider. minZoom must not exceed maxZoom and the tile
// dimensions must be positive.
func New(minZoom, maxZoom, tileWidth, tileHeight int, projection geo.Projection, attribution string, transport Transport) *Provider {
	return &Provider{
		minZoom:     minZoom,
		maxZoom:     maxZoom,
		tileWidth:   tileWidth,
		tileHeight:  tileHeight,
		projection:  projection,
		attribution: attribution,
		transport:   transport,
	}
}

func (p *Provider) MinZoom() int        { return p.minZoom }
func (p *Provider) MaxZoom() int        { return p.maxZoom }
func (p *Provider) TileWidth() int      { return p.tileWidth }
func (p *Provider) TileHeight() int     { return p.tileHeight }
func (p *Provider) Attribution() string { return p.attribution }

// TileSize returns the tile dimensions in pixels.
func (p *Provider) TileSize() (width, height int) {
	return p.tileWidth, p.tileHeight
}

// ZoomForScale converts a linear scale factor to a zoom level. A scale of 1
// is zoom 0, doubling the scale adds one zoom level.
func (p *Provider) ZoomForScale(scale float64) float64 {
	return math.Log2(scale)
}

// GeoToTile projects a geographic coordinate into tile space at zoom 0.
// Callers rescale the result with ZoomTo to reach a concrete zoom level.
func (p *Provider) GeoToTile(c geo.Coordinate) tile.Coordinate {
	x, y := p.projection.Project(c)
	return tile.New(y, x, 0)
}

// TileToGeo is the inverse of GeoToTile for any zoom level.
func (p *Provider) TileToGeo(c tile.Coordinate) geo.Coordinate {
	zoomed := c.ZoomTo(0)
	return p.projection.Unproject(zoomed.Column, zoomed.Row)
}

// Request is one pending tile fetch handed to the loader. The ID ties the
// fetch together across log lines.
type Request struct {
	ID        string
	Coord     tile.Coordinate
	transport Transport
}

// RequestTile prepares a fetch for the given coordinate. The returned request
// does nothing until the loader runs it.
func (p *Provider) RequestTile(coord tile.Coordinate) *Request {
	return &Request{
		ID:        uuid.New().String(),
		Coord:     coord,
		transport: p.transport,
	}
}

// Do executes the fetch.
func (r *Request) Do(ctx context.Context) (image.Image, error) {
	return r.transport.Fetch(ctx, r.Coord)
}
