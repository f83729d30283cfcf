package geometry

import (
	"fmt"
	"image"
	"math"
	"testing"
)

const epsilon = 1e-9 // tolerance for float comparisons (pixels)

const portrait = 3.0 / 4.0

func TestCenterCrop_Landscape(t *testing.T) {
	// 1280x720 webcam: full height, width = 720*0.75 = 540, centered.
	got := CenterCrop(1280, 720, portrait)
	want := Rect{X: 370, Y: 0, W: 540, H: 720}
	if got != want {
		t.Errorf("CenterCrop(1280, 720) = %+v, want %+v", got, want)
	}
}

func TestCenterCrop_TallPortrait(t *testing.T) {
	// 1080x1920 phone portrait: full width, height = 1080/0.75 = 1440, centered.
	got := CenterCrop(1080, 1920, portrait)
	want := Rect{X: 0, Y: 240, W: 1080, H: 1440}
	if got != want {
		t.Errorf("CenterCrop(1080, 1920) = %+v, want %+v", got, want)
	}
}

func TestCenterCrop_ExactAspect(t *testing.T) {
	got := CenterCrop(900, 1200, portrait)
	want := Rect{X: 0, Y: 0, W: 900, H: 1200}
	if got != want {
		t.Errorf("CenterCrop(900, 1200) = %+v, want %+v", got, want)
	}
}

func TestCenterCrop_Properties(t *testing.T) {
	sizes := [][2]int{
		{640, 480}, {1280, 720}, {1920, 1080}, {3840, 2160},
		{480, 640}, {720, 1280}, {1080, 1920}, {1, 1},
		{3, 4}, {4, 3}, {1000, 1}, {1, 1000}, {1023, 767},
	}
	for _, sz := range sizes {
		vW, vH := sz[0], sz[1]
		t.Run(fmt.Sprintf("%dx%d", vW, vH), func(t *testing.T) {
			r := CenterCrop(vW, vH, portrait)

			if math.Abs(r.Aspect()-portrait) > 1e-9 {
				t.Errorf("aspect = %v, want %v", r.Aspect(), portrait)
			}
			if r.X < -epsilon || r.Y < -epsilon ||
				r.X+r.W > float64(vW)+epsilon || r.Y+r.H > float64(vH)+epsilon {
				t.Errorf("crop %+v not contained in %dx%d", r, vW, vH)
			}
			// Centered on the cropped axis.
			left, right := r.X, float64(vW)-(r.X+r.W)
			top, bottom := r.Y, float64(vH)-(r.Y+r.H)
			if math.Abs(left-right) > epsilon {
				t.Errorf("not horizontally centered: left=%v right=%v", left, right)
			}
			if math.Abs(top-bottom) > epsilon {
				t.Errorf("not vertically centered: top=%v bottom=%v", top, bottom)
			}
			// One axis is always kept whole.
			if math.Abs(r.W-float64(vW)) > epsilon && math.Abs(r.H-float64(vH)) > epsilon {
				t.Errorf("crop %+v keeps neither full width nor full height", r)
			}
		})
	}
}

func TestCover_SquareIntoSlot(t *testing.T) {
	// 1:1 source into 516:649 slot: source is wider, so height matches.
	dst := Rect{X: 20, Y: 26, W: 516, H: 649}
	got := Cover(800, 800, dst)

	if got.H != dst.H {
		t.Errorf("draw height = %v, want %v", got.H, dst.H)
	}
	if got.W != 649 {
		t.Errorf("draw width = %v, want 649", got.W)
	}
	wantX := 20 - (649.0-516.0)/2
	if math.Abs(got.X-wantX) > epsilon || got.Y != 26 {
		t.Errorf("draw origin = (%v,%v), want (%v,26)", got.X, got.Y, wantX)
	}
}

func TestCover_WideIntoSlot(t *testing.T) {
	// 16:9 source into 516:649 slot: height matches, width overflows.
	dst := Rect{X: 544, Y: 680, W: 516, H: 649}
	got := Cover(1920, 1080, dst)

	if got.H != dst.H {
		t.Errorf("draw height = %v, want %v", got.H, dst.H)
	}
	wantW := 649.0 * 16 / 9
	if math.Abs(got.W-wantW) > 1e-6 {
		t.Errorf("draw width = %v, want %v", got.W, wantW)
	}
	if math.Abs((got.X+got.W/2)-(dst.X+dst.W/2)) > 1e-6 {
		t.Errorf("not horizontally centered: %+v", got)
	}
}

func TestCover_TallIntoSlot(t *testing.T) {
	// 9:16 source is taller than the slot: width matches, height overflows.
	dst := Rect{X: 0, Y: 0, W: 516, H: 649}
	got := Cover(1080, 1920, dst)

	if got.W != dst.W {
		t.Errorf("draw width = %v, want %v", got.W, dst.W)
	}
	if math.Abs((got.Y+got.H/2)-(dst.Y+dst.H/2)) > 1e-6 {
		t.Errorf("not vertically centered: %+v", got)
	}
	if got.H < dst.H {
		t.Errorf("draw height %v does not cover %v", got.H, dst.H)
	}
}

func TestCover_AlwaysCovers(t *testing.T) {
	dst := Rect{X: 10, Y: 20, W: 516, H: 649}
	sources := [][2]int{{1, 1}, {16, 9}, {9, 16}, {3, 4}, {4, 3}, {900, 1200}, {516, 649}, {1, 1000}}
	for _, s := range sources {
		got := Cover(s[0], s[1], dst)
		if got.X > dst.X+epsilon || got.Y > dst.Y+epsilon ||
			got.X+got.W < dst.X+dst.W-epsilon || got.Y+got.H < dst.Y+dst.H-epsilon {
			t.Errorf("Cover(%dx%d) = %+v does not cover %+v", s[0], s[1], got, dst)
		}
		srcAspect := float64(s[0]) / float64(s[1])
		if math.Abs(got.Aspect()-srcAspect) > 1e-9 {
			t.Errorf("Cover(%dx%d) distorts: aspect %v, want %v", s[0], s[1], got.Aspect(), srcAspect)
		}
	}
}

func TestRect_Pixels(t *testing.T) {
	r := Rect{X: -66.5, Y: 26, W: 649, H: 649}
	got := r.Pixels()
	want := image.Rect(-67, 26, 583, 675)
	if got != want {
		t.Errorf("Pixels() = %v, want %v", got, want)
	}
	if RectFrom(want).Pixels() != want {
		t.Errorf("RectFrom round trip changed %v", want)
	}
}
