package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Synthetic is a Camera that renders a generated test card.
// Used for development on a PC without a webcam, or for testing.
//
// The card is split vertically: the left half is Left, the right half is
// Right, with a white marker in the top-left corner. That makes mirroring
// and cropping visible in the saved photos.
type Synthetic struct {
	Width, Height int
	Left, Right   color.RGBA
}

// NewSynthetic creates a synthetic camera producing width x height frames.
func NewSynthetic(width, height int) *Synthetic {
	return &Synthetic{
		Width:  width,
		Height: height,
		Left:   color.RGBA{R: 0xe8, G: 0x6a, B: 0x92, A: 0xff},
		Right:  color.RGBA{R: 0x3a, G: 0x6e, B: 0xa5, A: 0xff},
	}
}

// Open returns a stream over the generated test card.
func (s *Synthetic) Open(ctx context.Context, req Request) (Stream, error) {
	if req.Audio {
		return nil, ErrAudioUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := s.Width, s.Height
	if req.IdealWidth > 0 && req.IdealHeight > 0 {
		w, h = req.IdealWidth, req.IdealHeight
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: synthetic frame size %dx%d", ErrNoDevice, w, h)
	}
	debug.Verbose("Camera: synthetic stream opened (%dx%d, facing=%s)", w, h, req.Facing)
	return &syntheticStream{card: testCard(w, h, s.Left, s.Right)}, nil
}

func testCard(w, h int, left, right color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := left
			if x >= w/2 {
				c = right
			}
			img.SetRGBA(x, y, c)
		}
	}
	marker := min(w, h) / 10
	for y := 0; y < marker; y++ {
		for x := 0; x < marker; x++ {
			img.SetRGBA(x, y, color.RGBA{0xff, 0xff, 0xff, 0xff})
		}
	}
	return img
}

type syntheticStream struct {
	mu      sync.Mutex
	card    *image.RGBA
	stopped bool
}

func (s *syntheticStream) Dimensions() (int, int) {
	b := s.card.Bounds()
	return b.Dx(), b.Dy()
}

func (s *syntheticStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	debug.Trace("Camera: synthetic frame read")
	return s.card, nil
}

func (s *syntheticStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		debug.Verbose("Camera: synthetic stream stopped")
	}
	return nil
}
