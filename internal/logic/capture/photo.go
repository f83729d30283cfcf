package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/cjeanneret/BoothGo/internal/logic/geometry"
)

// PhotoSpec fixes the size and encoding of a captured photo.
type PhotoSpec struct {
	Width   int     // output width in pixels
	Height  int     // output height in pixels
	Aspect  float64 // crop aspect, width/height
	Quality int     // JPEG quality 1-100
}

// DefaultPhotoSpec is a 900x1200 3:4 JPEG at quality 95.
func DefaultPhotoSpec() PhotoSpec {
	return PhotoSpec{Width: 900, Height: 1200, Aspect: 3.0 / 4.0, Quality: 95}
}

// Validate rejects specs that cannot produce an image.
func (p PhotoSpec) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("photo size must be positive, got %dx%d", p.Width, p.Height)
	}
	if p.Aspect <= 0 {
		return fmt.Errorf("photo aspect must be positive, got %v", p.Aspect)
	}
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", p.Quality)
	}
	return nil
}

// Photo is one captured, cropped, mirrored and encoded still.
type Photo struct {
	ID      string    `json:"id"`
	Index   int       `json:"index"` // 0 or 1, order of capture
	Data    []byte    `json:"-"`     // JPEG
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	TakenAt time.Time `json:"taken_at"`
}

// Render crops frame to spec.Aspect around its center, mirrors it
// horizontally and scales it to spec.Width x spec.Height.
func Render(frame image.Image, spec PhotoSpec) (*image.RGBA, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	crop := geometry.CenterCrop(b.Dx(), b.Dy(), spec.Aspect)
	crop.X += float64(b.Min.X)
	crop.Y += float64(b.Min.Y)

	dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	sx := float64(spec.Width) / crop.W
	sy := float64(spec.Height) / crop.H
	// source -> destination: x' = W - (x-cx)*sx, y' = (y-cy)*sy
	m := f64.Aff3{
		-sx, 0, sx*crop.X + float64(spec.Width),
		0, sy, -sy * crop.Y,
	}
	sr := crop.Pixels().Intersect(b)
	draw.CatmullRom.Transform(dst, m, frame, sr, draw.Src, nil)
	return dst, nil
}

// Capture renders frame at the PhotoSpec size and encodes it as JPEG.
func Capture(frame image.Image, spec PhotoSpec) ([]byte, error) {
	img, err := Render(frame, spec)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img, spec.Quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
