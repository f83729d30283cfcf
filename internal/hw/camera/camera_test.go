package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestSynthetic_ImplementsCamera(t *testing.T) {
	var _ Camera = NewSynthetic(64, 48) // compile-time check
}

func TestSynthetic_OpenAndFrame(t *testing.T) {
	cam := NewSynthetic(64, 48)
	s, err := cam.Open(context.Background(), Request{Facing: FacingUser})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()

	w, h := s.Dimensions()
	if w != 64 || h != 48 {
		t.Errorf("Dimensions = %dx%d, want 64x48", w, h)
	}
	frame, err := s.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if got := color.RGBAModel.Convert(frame.At(10, 40)); got != cam.Left {
		t.Errorf("left half pixel = %v, want %v", got, cam.Left)
	}
	if got := color.RGBAModel.Convert(frame.At(50, 40)); got != cam.Right {
		t.Errorf("right half pixel = %v, want %v", got, cam.Right)
	}
}

func TestSynthetic_IdealResolution(t *testing.T) {
	cam := NewSynthetic(64, 48)
	s, err := cam.Open(context.Background(), Request{IdealWidth: 30, IdealHeight: 40})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Stop()
	if w, h := s.Dimensions(); w != 30 || h != 40 {
		t.Errorf("Dimensions = %dx%d, want 30x40", w, h)
	}
}

func TestSynthetic_RejectsAudio(t *testing.T) {
	_, err := NewSynthetic(64, 48).Open(context.Background(), Request{Audio: true})
	if !errors.Is(err, ErrAudioUnsupported) {
		t.Errorf("err = %v, want ErrAudioUnsupported", err)
	}
}

func TestSynthetic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSynthetic(64, 48).Open(ctx, Request{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSynthetic_StopIsIdempotent(t *testing.T) {
	s, err := NewSynthetic(8, 8).Open(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, err := s.Frame(); !errors.Is(err, ErrStopped) {
		t.Errorf("Frame after Stop err = %v, want ErrStopped", err)
	}
}

func TestStill_OpenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s, err := NewStill(path).Open(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if w, h := s.Dimensions(); w != 20 || h != 10 {
		t.Errorf("Dimensions = %dx%d, want 20x10", w, h)
	}
	if _, err := s.Frame(); err != nil {
		t.Errorf("Frame: %v", err)
	}
	s.Stop()
	if _, err := s.Frame(); !errors.Is(err, ErrStopped) {
		t.Errorf("Frame after Stop err = %v, want ErrStopped", err)
	}
}

func TestStill_MissingFile(t *testing.T) {
	_, err := NewStill(filepath.Join(t.TempDir(), "none.png")).Open(context.Background(), Request{})
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}
}

func TestGoCV_StubWithoutTag(t *testing.T) {
	if GoCVAvailable {
		t.Skip("built with gocv support")
	}
	if _, err := NewGoCV(0); !errors.Is(err, ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}
}
