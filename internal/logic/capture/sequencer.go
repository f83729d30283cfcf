// Package capture runs the timed two-shot photo session against a live camera.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/telemetry"
)

// PhotosPerSession is the number of shots in one session.
const PhotosPerSession = 2

// Status lines shown to the user.
const (
	StatusGetReady     = "Get Ready..."
	StatusPose         = "Pose!"
	StatusNextPose     = "Next Pose!"
	StatusCameraDenied = "Please allow camera access to use the booth!"
)

var (
	// ErrCameraUnavailable is returned when the stream cannot be opened or read.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrRunning is returned by Run while another session is active.
	ErrRunning = errors.New("capture session already running")
	// ErrNoStream is returned by Preview outside of a session.
	ErrNoStream = errors.New("no live stream")
)

// State is the sequencer's position in a session.
type State int

const (
	StateIdle State = iota
	StateStreamRequested
	StateStreamError
	StateStreamReady
	StateWaiting
	StateCountdown
	StateCapturing
	StateCompleting
	StateDone
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateStreamRequested: "stream_requested",
	StateStreamError:     "stream_error",
	StateStreamReady:     "stream_ready",
	StateWaiting:         "waiting",
	StateCountdown:       "countdown",
	StateCapturing:       "capturing",
	StateCompleting:      "completing",
	StateDone:            "done",
	StateCancelled:       "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	State       State  `json:"state"`
	PhotosTaken int    `json:"photos_taken"`
	Countdown   int    `json:"countdown"` // 0 = no countdown shown
	Status      string `json:"status"`
	Flash       bool   `json:"flash"`
}

// Timing paces a session.
type Timing struct {
	Settle   time.Duration // before the first countdown
	Tick     time.Duration // per countdown step
	Between  time.Duration // between the two poses
	Complete time.Duration // after the second shot
	Flash    time.Duration // flash indicator
}

// DefaultTiming returns the booth pacing.
func DefaultTiming() Timing {
	return Timing{
		Settle:   2000 * time.Millisecond,
		Tick:     1000 * time.Millisecond,
		Between:  2000 * time.Millisecond,
		Complete: 1000 * time.Millisecond,
		Flash:    200 * time.Millisecond,
	}
}

// Flash is a capture side effect (screen overlay, flash light).
// Pulse must not block.
type Flash interface {
	Pulse(d time.Duration)
}

// Options configures a Sequencer. Zero values take defaults.
type Options struct {
	Spec          PhotoSpec
	Timing        Timing
	CountdownFrom int
	IdealWidth    int // resolution hint, 0 = none
	IdealHeight   int
	Flash         Flash
	OnState       func(Snapshot)
	OnComplete    func([]Photo)
}

// Sequencer owns the camera stream for the length of one session.
type Sequencer struct {
	cam  camera.Camera
	opts Options

	running atomic.Bool

	mu         sync.Mutex
	snap       Snapshot
	stream     camera.Stream
	flashTimer *time.Timer
}

// NewSequencer creates a sequencer for cam.
func NewSequencer(cam camera.Camera, opts Options) *Sequencer {
	if opts.Spec == (PhotoSpec{}) {
		opts.Spec = DefaultPhotoSpec()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.CountdownFrom <= 0 {
		opts.CountdownFrom = 3
	}
	return &Sequencer{cam: cam, opts: opts}
}

// Snapshot returns the current state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Running reports whether a session is active.
func (s *Sequencer) Running() bool {
	return s.running.Load()
}

// Preview returns the live frame cropped and mirrored like a capture, as JPEG.
func (s *Sequencer) Preview(quality int) ([]byte, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil, ErrNoStream
	}
	frame, err := stream.Frame()
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	spec := s.opts.Spec
	spec.Quality = quality
	return Capture(frame, spec)
}

// Run executes one session: open the stream, count down and shoot twice,
// then hand the ordered photos to OnComplete. The stream is stopped on
// every return path. Cancelling ctx aborts the session without further
// captures.
func (s *Sequencer) Run(ctx context.Context) (photos []Photo, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer s.running.Store(false)

	ctx, span := telemetry.Start(ctx, "capture.session")
	defer func() { telemetry.End(span, err) }()

	debug.Section("Capture Session")
	s.set(Snapshot{State: StateStreamRequested})

	stream, err := s.cam.Open(ctx, camera.Request{
		Facing:      camera.FacingUser,
		IdealWidth:  s.opts.IdealWidth,
		IdealHeight: s.opts.IdealHeight,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.cancel(0, ctx.Err())
		}
		s.set(Snapshot{State: StateStreamError, Status: StatusCameraDenied})
		debug.Warn("Camera: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	s.attach(stream)
	defer s.detach(stream)

	w, h := stream.Dimensions()
	debug.Verbose("Stream ready: %dx%d", w, h)
	s.set(Snapshot{State: StateStreamReady})

	photos = make([]Photo, 0, PhotosPerSession)
	for i := 0; i < PhotosPerSession; i++ {
		status, pause := StatusGetReady, s.opts.Timing.Settle
		if i > 0 {
			status, pause = StatusNextPose, s.opts.Timing.Between
		}
		s.set(Snapshot{State: StateWaiting, PhotosTaken: i, Status: status})
		debug.Live(status)
		if err := wait(ctx, pause); err != nil {
			return nil, s.cancel(i, err)
		}

		for n := s.opts.CountdownFrom; n >= 1; n-- {
			s.set(Snapshot{State: StateCountdown, PhotosTaken: i, Countdown: n, Status: StatusPose})
			debug.Countdown(n)
			if err := wait(ctx, s.opts.Timing.Tick); err != nil {
				return nil, s.cancel(i, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, s.cancel(i, err)
		}

		s.set(Snapshot{State: StateCapturing, PhotosTaken: i, Status: StatusPose})
		p, err := s.shoot(ctx, stream, i)
		if err != nil {
			s.set(Snapshot{State: StateStreamError, PhotosTaken: i, Status: StatusCameraDenied})
			return nil, err
		}
		photos = append(photos, p)
		s.flash()
	}

	s.set(Snapshot{State: StateCompleting, PhotosTaken: PhotosPerSession})
	if err := wait(ctx, s.opts.Timing.Complete); err != nil {
		return nil, s.cancel(PhotosPerSession, err)
	}
	s.set(Snapshot{State: StateDone, PhotosTaken: PhotosPerSession})
	debug.Live("Session complete")

	if s.opts.OnComplete != nil {
		s.opts.OnComplete(photos)
	}
	return photos, nil
}

func (s *Sequencer) shoot(ctx context.Context, stream camera.Stream, index int) (p Photo, err error) {
	_, span := telemetry.Start(ctx, "capture.snapshot")
	defer func() { telemetry.End(span, err) }()

	frame, err := stream.Frame()
	if err != nil {
		return Photo{}, fmt.Errorf("%w: read frame: %v", ErrCameraUnavailable, err)
	}
	data, err := Capture(frame, s.opts.Spec)
	if err != nil {
		return Photo{}, fmt.Errorf("capture photo %d: %w", index+1, err)
	}
	p = Photo{
		ID:      uuid.NewString(),
		Index:   index,
		Data:    data,
		Width:   s.opts.Spec.Width,
		Height:  s.opts.Spec.Height,
		TakenAt: time.Now(),
	}
	debug.Shot(index+1, p.Width, p.Height)
	debug.Bytes(fmt.Sprintf("Photo %d", index+1), len(data))
	return p, nil
}

// wait blocks for d or until ctx is done. The timer never outlives the call.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Sequencer) cancel(taken int, err error) error {
	s.set(Snapshot{State: StateCancelled, PhotosTaken: taken})
	debug.Info("Capture session cancelled")
	return fmt.Errorf("capture cancelled: %w", err)
}

func (s *Sequencer) flash() {
	d := s.opts.Timing.Flash
	if s.opts.Flash != nil {
		s.opts.Flash.Pulse(d)
	}
	s.mu.Lock()
	s.snap.Flash = true
	if s.flashTimer != nil {
		s.flashTimer.Stop()
	}
	s.flashTimer = time.AfterFunc(d, s.clearFlash)
	snap := s.snap
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Sequencer) clearFlash() {
	s.mu.Lock()
	if !s.snap.Flash {
		s.mu.Unlock()
		return
	}
	s.snap.Flash = false
	snap := s.snap
	s.mu.Unlock()
	s.notify(snap)
}

// set replaces the snapshot, keeping the flash indicator until it expires.
func (s *Sequencer) set(next Snapshot) {
	s.mu.Lock()
	next.Flash = s.snap.Flash && s.flashTimer != nil
	s.snap = next
	s.mu.Unlock()
	debug.Trace("Sequencer: %s (photos=%d countdown=%d)", next.State, next.PhotosTaken, next.Countdown)
	s.notify(next)
}

func (s *Sequencer) notify(snap Snapshot) {
	if s.opts.OnState != nil {
		s.opts.OnState(snap)
	}
}

func (s *Sequencer) attach(stream camera.Stream) {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
}

func (s *Sequencer) detach(stream camera.Stream) {
	s.mu.Lock()
	s.stream = nil
	if s.flashTimer != nil {
		s.flashTimer.Stop()
		s.flashTimer = nil
	}
	s.snap.Flash = false
	s.mu.Unlock()
	if err := stream.Stop(); err != nil {
		debug.Warn("Camera: stop stream: %v", err)
	}
}
