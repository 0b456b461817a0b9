package render

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Surface is a fixed-size offscreen target a layer composites tiles into.
// A draw cycle is Begin, Clear, any number of DrawImage calls, End. The
// composited result is then copied out with Blit or BlitScaled.
type Surface interface {
	Begin()
	Clear(c color.Color)
	// DrawImage composites img into the surface with its top-left corner at
	// (x, y), scaled to w×h pixels.
	DrawImage(img image.Image, x, y, w, h float64)
	End()

	// Blit copies the surface into dst at (x, y) at its native size.
	Blit(dst draw.Image, x, y float64)
	// BlitScaled copies the surface into dst at (x, y) scaled to w×h.
	BlitScaled(dst draw.Image, x, y, w, h float64)
}

// ImageSurface composites into an image.RGBA using x/image scalers:
// nearest-neighbor for 1:1 tiles, bilinear when a tile has to be stretched
// (an ancestor standing in for a missing tile, or a scaled blit).
type ImageSurface struct {
	rgba *image.RGBA
}

func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{
		rgba: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Image exposes the composited frame. Valid after End until the next Begin.
func (s *ImageSurface) Image() *image.RGBA {
	return s.rgba
}

func (s *ImageSurface) Begin() {}

func (s *ImageSurface) Clear(c color.Color) {
	draw.Draw(s.rgba, s.rgba.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
}

func (s *ImageSurface) DrawImage(img image.Image, x, y, w, h float64) {
	dst := rect(x, y, w, h)
	if dst.Empty() {
		return
	}

	src := img.Bounds()
	if dst.Dx() == src.Dx() && dst.Dy() == src.Dy() {
		draw.Draw(s.rgba, dst, img, src.Min, draw.Over)
		return
	}
	xdraw.BiLinear.Scale(s.rgba, dst, img, src, xdraw.Over, nil)
}

func (s *ImageSurface) End() {}

func (s *ImageSurface) Blit(dst draw.Image, x, y float64) {
	b := s.rgba.Bounds()
	s.BlitScaled(dst, x, y, float64(b.Dx()), float64(b.Dy()))
}

func (s *ImageSurface) BlitScaled(dst draw.Image, x, y, w, h float64) {
	target := rect(x, y, w, h)
	if target.Empty() {
		return
	}

	src := s.rgba.Bounds()
	if target.Dx() == src.Dx() && target.Dy() == src.Dy() {
		draw.Draw(dst, target, s.rgba, src.Min, draw.Over)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, target, s.rgba, src, xdraw.Over, nil)
}

// rect rounds a float rectangle to whole pixels, keeping the two edges
// independent so adjacent tiles stay seam-free.
func rect(x, y, w, h float64) image.Rectangle {
	return image.Rect(round(x), round(y), round(x+w), round(y+h))
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
