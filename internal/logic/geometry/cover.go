package geometry

import (
	"image"
	"math"
)

// Rect is a rectangle in floating point pixel coordinates.
// Crop windows and cover-fit draw rectangles are computed as Rects and only
// rounded to pixels when they are handed to a rasterizer.
type Rect struct {
	X, Y float64 // top-left corner
	W, H float64 // width and height
}

// RectFrom converts an integer rectangle.
func RectFrom(r image.Rectangle) Rect {
	return Rect{
		X: float64(r.Min.X),
		Y: float64(r.Min.Y),
		W: float64(r.Dx()),
		H: float64(r.Dy()),
	}
}

// Aspect returns W/H.
func (r Rect) Aspect() float64 {
	return r.W / r.H
}

// Pixels returns the smallest integer rectangle containing r.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)),
		int(math.Ceil(r.Y+r.H)),
	)
}

// CenterCrop returns the largest window of aspect ratio `aspect` (width/height)
// that fits in a srcW x srcH frame, centered on the axis that gets cropped.
// This is what a 3:4 preview box with object-fit: cover shows of a frame:
//
//	srcW/srcH > aspect: full height, width = srcH*aspect, centered horizontally
//	otherwise:          full width, height = srcW/aspect, centered vertically
func CenterCrop(srcW, srcH int, aspect float64) Rect {
	w, h := float64(srcW), float64(srcH)
	if w/h > aspect {
		cropW := h * aspect
		return Rect{X: (w - cropW) / 2, Y: 0, W: cropW, H: h}
	}
	cropH := w / aspect
	return Rect{X: 0, Y: (h - cropH) / 2, W: w, H: cropH}
}

// Cover returns where a srcW x srcH image must be drawn so that it covers dst
// entirely with uniform scaling. The overflow axis is centered on dst; the
// caller clips to dst.
func Cover(srcW, srcH int, dst Rect) Rect {
	srcAspect := float64(srcW) / float64(srcH)
	if srcAspect > dst.Aspect() {
		drawW := dst.H * srcAspect
		return Rect{X: dst.X - (drawW-dst.W)/2, Y: dst.Y, W: drawW, H: dst.H}
	}
	drawH := dst.W / srcAspect
	return Rect{X: dst.X, Y: dst.Y - (drawH-dst.H)/2, W: dst.W, H: drawH}
}
