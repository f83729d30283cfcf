package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/cjeanneret/BoothGo/internal/asset"
	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Still is a Camera whose live feed is a single image file.
// Useful for kiosk demos and for reproducing a capture from a saved frame.
type Still struct {
	Path string
}

// NewStill creates a still camera reading path on every Open.
func NewStill(path string) *Still {
	return &Still{Path: path}
}

// Open decodes the image file. A missing or corrupt file is reported as ErrNoDevice.
func (s *Still) Open(ctx context.Context, req Request) (Stream, error) {
	if req.Audio {
		return nil, ErrAudioUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := asset.NewFileLoader(s.Path).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	b := img.Bounds()
	debug.Verbose("Camera: still stream opened from %s (%dx%d)", s.Path, b.Dx(), b.Dy())
	return &stillStream{img: img}, nil
}

type stillStream struct {
	mu      sync.Mutex
	img     image.Image
	stopped bool
}

func (s *stillStream) Dimensions() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	return s.img, nil
}

func (s *stillStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}
