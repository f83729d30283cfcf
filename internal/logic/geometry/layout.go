package geometry

import (
	"fmt"
	"image"
)

// Layout is the fixed card layout: a canvas and exactly two photo slots.
type Layout struct {
	Width, Height int
	Slots         [2]image.Rectangle
}

// DefaultLayout is the 1080x1440 card with two 516x649 photos,
// top-left and bottom-right.
func DefaultLayout() Layout {
	return NewLayout(1080, 1440, 516, 649, [2]image.Point{{X: 20, Y: 26}, {X: 544, Y: 680}})
}

// NewLayout builds a layout where both slots share the same photo size.
func NewLayout(canvasW, canvasH, photoW, photoH int, origins [2]image.Point) Layout {
	l := Layout{Width: canvasW, Height: canvasH}
	for i, o := range origins {
		l.Slots[i] = image.Rect(o.X, o.Y, o.X+photoW, o.Y+photoH)
	}
	return l
}

// Bounds returns the canvas rectangle.
func (l Layout) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// Validate checks that both slots are non-empty, inside the canvas and
// do not overlap.
func (l Layout) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("canvas must be positive, got %dx%d", l.Width, l.Height)
	}
	canvas := l.Bounds()
	for i, s := range l.Slots {
		if s.Empty() {
			return fmt.Errorf("slot %d is empty", i+1)
		}
		if !s.In(canvas) {
			return fmt.Errorf("slot %d %v exceeds canvas %v", i+1, s, canvas)
		}
	}
	if l.Slots[0].Overlaps(l.Slots[1]) {
		return fmt.Errorf("slots overlap: %v and %v", l.Slots[0], l.Slots[1])
	}
	return nil
}
