//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// GoCVAvailable reports whether the binary was built with webcam support.
const GoCVAvailable = true

// GoCV is a Camera backed by a V4L2/AVFoundation/MSMF webcam through OpenCV.
// Build with -tags gocv (requires OpenCV 4 on the host).
type GoCV struct {
	Device int
}

// NewGoCV creates a webcam camera for the given device index.
func NewGoCV(device int) (Camera, error) {
	return &GoCV{Device: device}, nil
}

// Open starts the device and applies the resolution hint when one is given.
func (g *GoCV) Open(ctx context.Context, req Request) (Stream, error) {
	if req.Audio {
		return nil, ErrAudioUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(g.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrNoDevice, g.Device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrNoDevice, g.Device)
	}
	if req.IdealWidth > 0 && req.IdealHeight > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(req.IdealWidth))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(req.IdealHeight))
	}
	s := &gocvStream{
		vc:     vc,
		mat:    gocv.NewMat(),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	debug.Info("Camera: webcam %d opened (%dx%d)", g.Device, s.width, s.height)
	return s, nil
}

type gocvStream struct {
	mu            sync.Mutex
	vc            *gocv.VideoCapture
	mat           gocv.Mat
	width, height int
	stopped       bool
}

func (s *gocvStream) Dimensions() (int, int) {
	return s.width, s.height
}

func (s *gocvStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("camera: webcam read failed")
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera: convert frame: %w", err)
	}
	debug.Trace("Camera: webcam frame %dx%d", s.mat.Cols(), s.mat.Rows())
	return img, nil
}

func (s *gocvStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	_ = s.mat.Close()
	debug.Verbose("Camera: webcam released")
	return s.vc.Close()
}
