package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrStopped is returned by Frame once the stream has been stopped.
	ErrStopped = errors.New("camera: stream stopped")
	// ErrAudioUnsupported is returned when a request asks for audio; the booth never records sound.
	ErrAudioUnsupported = errors.New("camera: audio capture is not supported")
	// ErrNoDevice is returned when no usable video device can be opened.
	ErrNoDevice = errors.New("camera: no video device")
)

// Facing selects which camera to open on devices that have several.
type Facing int

const (
	FacingUser Facing = iota // front camera, the one looking at the subject
	FacingEnvironment
)

func (f Facing) String() string {
	if f == FacingEnvironment {
		return "environment"
	}
	return "user"
}

// Request describes the stream the booth asks for.
// IdealWidth/IdealHeight are hints; 0 leaves the device at its native mode.
type Request struct {
	Facing      Facing
	Audio       bool
	IdealWidth  int
	IdealHeight int
}

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract live camera, regardless of how frames are
// produced (USB webcam, still image, generated test card, etc.).
type Camera interface {
	// Open acquires a live stream. It may block until the device is ready.
	Open(ctx context.Context, req Request) (Stream, error)
}

// Stream is an open capture handle. It is owned by a single session.
type Stream interface {
	// Dimensions returns the intrinsic frame size.
	Dimensions() (width, height int)
	// Frame returns the current live frame at intrinsic resolution.
	Frame() (image.Image, error)
	// Stop releases every underlying track. Safe to call more than once.
	Stop() error
}
