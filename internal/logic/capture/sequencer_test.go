package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/BoothGo/internal/hw/camera"
)

// fakeCamera wraps a synthetic camera and counts frames and stops.
type fakeCamera struct {
	mu      sync.Mutex
	inner   camera.Camera
	openErr error
	frames  int
	stops   int
	req     camera.Request
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{inner: camera.NewSynthetic(64, 48)}
}

func (f *fakeCamera) Open(ctx context.Context, req camera.Request) (camera.Stream, error) {
	f.mu.Lock()
	f.req = req
	err := f.openErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s, err := f.inner.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	return &fakeStream{Stream: s, cam: f}, nil
}

func (f *fakeCamera) counts() (frames, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames, f.stops
}

type fakeStream struct {
	camera.Stream
	cam *fakeCamera
}

func (s *fakeStream) Frame() (image.Image, error) {
	s.cam.mu.Lock()
	s.cam.frames++
	s.cam.mu.Unlock()
	return s.Stream.Frame()
}

func (s *fakeStream) Stop() error {
	s.cam.mu.Lock()
	s.cam.stops++
	s.cam.mu.Unlock()
	return s.Stream.Stop()
}

type countingFlash struct {
	mu     sync.Mutex
	pulses int
}

func (f *countingFlash) Pulse(time.Duration) {
	f.mu.Lock()
	f.pulses++
	f.mu.Unlock()
}

// recorder keeps state changes, dropping repeats caused by flash toggles.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Flash = false
	if n := len(r.snaps); n > 0 && r.snaps[n-1] == s {
		return
	}
	r.snaps = append(r.snaps, s)
}

func (r *recorder) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func fastTiming() Timing {
	return Timing{
		Settle:   time.Millisecond,
		Tick:     time.Millisecond,
		Between:  time.Millisecond,
		Complete: time.Millisecond,
		Flash:    time.Millisecond,
	}
}

func smallSpec() PhotoSpec {
	return PhotoSpec{Width: 30, Height: 40, Aspect: 0.75, Quality: 90}
}

func TestRun_TakesExactlyTwoPhotos(t *testing.T) {
	cam := newFakeCamera()
	flash := &countingFlash{}
	var (
		mu        sync.Mutex
		states    []Snapshot
		completed [][]Photo
	)
	seq := NewSequencer(cam, Options{
		Spec:   smallSpec(),
		Timing: fastTiming(),
		Flash:  flash,
		OnState: func(s Snapshot) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		OnComplete: func(p []Photo) {
			mu.Lock()
			completed = append(completed, p)
			mu.Unlock()
		},
	})

	photos, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("got %d photos, want 2", len(photos))
	}
	for i, p := range photos {
		if p.Index != i {
			t.Errorf("photo %d has index %d", i, p.Index)
		}
		if p.ID == "" {
			t.Errorf("photo %d has no ID", i)
		}
		img, err := jpeg.Decode(bytes.NewReader(p.Data))
		if err != nil {
			t.Fatalf("photo %d is not a JPEG: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 40 {
			t.Errorf("photo %d is %dx%d, want 30x40", i, b.Dx(), b.Dy())
		}
	}
	if photos[1].TakenAt.Before(photos[0].TakenAt) {
		t.Error("photos out of order")
	}

	frames, stops := cam.counts()
	if frames != 2 {
		t.Errorf("frames read = %d, want 2", frames)
	}
	if stops != 1 {
		t.Errorf("stream stops = %d, want 1", stops)
	}
	if flash.pulses != 2 {
		t.Errorf("flash pulses = %d, want 2", flash.pulses)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 1 {
		t.Fatalf("OnComplete called %d times, want 1", len(completed))
	}
	capturing := 0
	prev := StateIdle
	for _, s := range states {
		if s.State == StateCapturing && prev != StateCapturing {
			capturing++
		}
		prev = s.State
	}
	if capturing != 2 {
		t.Errorf("capturing transitions = %d, want 2", capturing)
	}
	if got := seq.Snapshot().State; got != StateDone {
		t.Errorf("final state = %v, want done", got)
	}
	if cam.req.Facing != camera.FacingUser || cam.req.Audio {
		t.Errorf("request = %+v, want user-facing without audio", cam.req)
	}
}

func TestRun_StateSequence(t *testing.T) {
	rec := &recorder{}
	var states []State
	seq := NewSequencer(newFakeCamera(), Options{
		Spec:          smallSpec(),
		Timing:        fastTiming(),
		CountdownFrom: 2,
		OnState: rec.record,
	})
	if _, err := seq.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, s := range rec.snapshots() {
		states = append(states, s.State)
	}

	want := []State{
		StateStreamRequested, StateStreamReady,
		StateWaiting, StateCountdown, StateCountdown, StateCapturing,
		StateWaiting, StateCountdown, StateCountdown, StateCapturing,
		StateCompleting, StateDone,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestRun_StatusAndCountdown(t *testing.T) {
	rec := &recorder{}
	seq := NewSequencer(newFakeCamera(), Options{
		Spec:    smallSpec(),
		Timing:  fastTiming(),
		OnState: rec.record,
	})
	if _, err := seq.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	snaps := rec.snapshots()
	var waiting []Snapshot
	var counts []int
	for _, s := range snaps {
		switch s.State {
		case StateWaiting:
			waiting = append(waiting, s)
		case StateCountdown:
			counts = append(counts, s.Countdown)
		}
	}
	if len(waiting) < 2 {
		t.Fatalf("waiting snapshots = %d, want >= 2", len(waiting))
	}
	if waiting[0].Status != StatusGetReady || waiting[0].PhotosTaken != 0 {
		t.Errorf("first wait = %+v", waiting[0])
	}
	last := waiting[len(waiting)-1]
	if last.Status != StatusNextPose || last.PhotosTaken != 1 {
		t.Errorf("second wait = %+v", last)
	}
	want := []int{3, 2, 1, 3, 2, 1}
	if len(counts) != len(want) {
		t.Fatalf("countdown = %v, want %v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("countdown = %v, want %v", counts, want)
		}
	}
}

func TestRun_CameraDenied(t *testing.T) {
	cam := newFakeCamera()
	cam.openErr = errors.New("permission denied")
	called := false
	seq := NewSequencer(cam, Options{
		Spec:       smallSpec(),
		Timing:     fastTiming(),
		OnComplete: func([]Photo) { called = true },
	})

	photos, err := seq.Run(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("err = %v, want ErrCameraUnavailable", err)
	}
	if photos != nil {
		t.Errorf("photos = %v, want none", photos)
	}
	if called {
		t.Error("OnComplete called after camera error")
	}
	snap := seq.Snapshot()
	if snap.State != StateStreamError {
		t.Errorf("state = %v, want stream_error", snap.State)
	}
	if snap.Status != StatusCameraDenied {
		t.Errorf("status = %q, want %q", snap.Status, StatusCameraDenied)
	}

	// A retry is a full restart.
	cam.mu.Lock()
	cam.openErr = nil
	cam.mu.Unlock()
	if _, err := seq.Run(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestRun_CancelStopsCapture(t *testing.T) {
	cam := newFakeCamera()
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	seq := NewSequencer(cam, Options{
		Spec: smallSpec(),
		Timing: Timing{
			Settle:   time.Millisecond,
			Tick:     time.Hour,
			Between:  time.Millisecond,
			Complete: time.Millisecond,
			Flash:    time.Millisecond,
		},
		OnState: func(s Snapshot) {
			if s.State == StateCountdown {
				cancel()
			}
		},
		OnComplete: func([]Photo) { called = true },
	})

	done := make(chan error, 1)
	go func() {
		_, err := seq.Run(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	frames, stops := cam.counts()
	if frames != 0 {
		t.Errorf("frames read after cancel = %d, want 0", frames)
	}
	if stops != 1 {
		t.Errorf("stream stops = %d, want 1", stops)
	}
	if called {
		t.Error("OnComplete called after cancel")
	}
	if got := seq.Snapshot().State; got != StateCancelled {
		t.Errorf("state = %v, want cancelled", got)
	}
}

func TestRun_RejectsConcurrentSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	var once sync.Once
	seq := NewSequencer(newFakeCamera(), Options{
		Spec:   smallSpec(),
		Timing: Timing{Settle: time.Hour, Tick: time.Millisecond, Between: time.Millisecond, Complete: time.Millisecond, Flash: time.Millisecond},
		OnState: func(s Snapshot) {
			if s.State == StateWaiting {
				once.Do(func() { close(started) })
			}
		},
	})
	done := make(chan struct{})
	go func() {
		seq.Run(ctx)
		close(done)
	}()
	<-started

	if !seq.Running() {
		t.Error("Running() = false during a session")
	}
	if _, err := seq.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run err = %v, want ErrRunning", err)
	}
	if _, err := seq.Preview(80); err != nil {
		t.Errorf("Preview during session: %v", err)
	}
	cancel()
	<-done
	if _, err := seq.Preview(80); !errors.Is(err, ErrNoStream) {
		t.Errorf("Preview after session err = %v, want ErrNoStream", err)
	}
}

func TestRender_CropsAndMirrors(t *testing.T) {
	cam := camera.NewSynthetic(64, 48)
	s, err := cam.Open(context.Background(), camera.Request{})
	if err != nil {
		t.Fatal(err)
	}
	frame, _ := s.Frame()

	img, err := Render(frame, smallSpec())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 40 {
		t.Fatalf("size = %v, want 30x40", b)
	}
	// Mirrored: the frame's right half shows on the left.
	if got := img.RGBAAt(3, 20); !near(got, cam.Right) {
		t.Errorf("left edge = %v, want %v", got, cam.Right)
	}
	if got := img.RGBAAt(26, 20); !near(got, cam.Left) {
		t.Errorf("right edge = %v, want %v", got, cam.Left)
	}
	// The top-left marker lies outside the 3:4 crop of a 4:3 frame.
	if got := img.RGBAAt(28, 1); near(got, color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("marker should be cropped out, got %v", got)
	}
}

func TestRender_TallFrameCropsVertically(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 30, 100))
	top := color.RGBA{0xff, 0, 0, 0xff}
	bottom := color.RGBA{0, 0, 0xff, 0xff}
	for y := 0; y < 100; y++ {
		c := top
		if y >= 50 {
			c = bottom
		}
		for x := 0; x < 30; x++ {
			frame.SetRGBA(x, y, c)
		}
	}
	img, err := Render(frame, smallSpec())
	if err != nil {
		t.Fatal(err)
	}
	// Crop is 30x40 centered: rows 30..70, half red half blue.
	if got := img.RGBAAt(15, 5); !near(got, top) {
		t.Errorf("top = %v, want %v", got, top)
	}
	if got := img.RGBAAt(15, 35); !near(got, bottom) {
		t.Errorf("bottom = %v, want %v", got, bottom)
	}
}

func TestPhotoSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    PhotoSpec
		wantErr bool
	}{
		{"default", DefaultPhotoSpec(), false},
		{"zero width", PhotoSpec{Width: 0, Height: 10, Aspect: 1, Quality: 90}, true},
		{"zero aspect", PhotoSpec{Width: 10, Height: 10, Quality: 90}, true},
		{"quality too low", PhotoSpec{Width: 10, Height: 10, Aspect: 1, Quality: 0}, true},
		{"quality too high", PhotoSpec{Width: 10, Height: 10, Aspect: 1, Quality: 101}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if StateCountdown.String() != "countdown" {
		t.Errorf("got %q", StateCountdown.String())
	}
	if State(99).String() != "state(99)" {
		t.Errorf("got %q", State(99).String())
	}
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) < 8 && d(a.G, b.G) < 8 && d(a.B, b.B) < 8
}
