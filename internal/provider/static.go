package provider

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"tileview/internal/tile"
)

// StaticTransport renders labelled placeholder tiles locally instead of
// fetching anything. Useful offline and in tests.
type StaticTransport struct {
	width  int
	height int
}

func NewStaticTransport(width, height int) *StaticTransport {
	return &StaticTransport{width: width, height: height}
}

func (t *StaticTransport) Fetch(ctx context.Context, coord tile.Coordinate) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))

	bg := color.RGBA{200, 220, 255, 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	// One-pixel border so tile seams are visible.
	border := color.RGBA{100, 100, 100, 255}
	edges := []image.Rectangle{
		image.Rect(0, 0, t.width, 1),
		image.Rect(0, t.height-1, t.width, t.height),
		image.Rect(0, 0, 1, t.height),
		image.Rect(t.width-1, 0, t.width, t.height),
	}
	for _, rect := range edges {
		draw.Draw(img, rect, &image.Uniform{border}, image.Point{}, draw.Src)
	}

	t.drawLabel(img, coord.Floored().String())
	return img, nil
}

func (t *StaticTransport) drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}

	textWidth := d.MeasureString(text).Round()
	textHeight := face.Metrics().Height.Round()

	d.Dot = fixed.Point26_6{
		X: fixed.I((t.width - textWidth) / 2),
		Y: fixed.I((t.height + textHeight) / 2),
	}
	d.DrawString(text)
}
