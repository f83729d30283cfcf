//go:build !gocv

package camera

import "fmt"

// GoCVAvailable reports whether the binary was built with webcam support.
const GoCVAvailable = false

// NewGoCV fails: this binary has no OpenCV support.
func NewGoCV(device int) (Camera, error) {
	return nil, fmt.Errorf("%w: webcam %d requested but BoothGo was built without -tags gocv", ErrNoDevice, device)
}
