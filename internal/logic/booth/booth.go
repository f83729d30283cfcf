// Package booth drives one visitor through the booth: capture, printing
// reveal and result, with retake going back to idle.
package booth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
)

var (
	// ErrBusy is returned when a session is already in progress.
	ErrBusy = errors.New("booth session in progress")
	// ErrNoCollage is returned when there is nothing to download.
	ErrNoCollage = errors.New("no collage available")
)

// Step is the screen the booth shows.
type Step int

const (
	StepIdle Step = iota
	StepCapture
	StepPrinting
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepCapture:
		return "capture"
	case StepPrinting:
		return "printing"
	case StepResult:
		return "result"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is what a front end needs to render the current screen.
type State struct {
	Step      Step             `json:"step"`
	SessionID string           `json:"session_id,omitempty"`
	Capture   capture.Snapshot `json:"capture"`
	Printing  bool             `json:"printing"` // print animation running
	CollageID string           `json:"collage_id,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Sequencer runs the capture session.
type Sequencer interface {
	Run(ctx context.Context) ([]capture.Photo, error)
}

// Compositor builds the collage from two JPEG photos.
type Compositor interface {
	Generate(ctx context.Context, photo1, photo2 []byte) (*collage.Collage, error)
}

// Options paces the printing reveal. Zero values take defaults.
type Options struct {
	PrintDelay    time.Duration // before the print animation starts
	PrintDuration time.Duration // from collage ready to result
	OnChange      func(State)
}

// Booth holds the photos and collage of the current visitor.
type Booth struct {
	seq  Sequencer
	comp Compositor
	opts Options

	mu      sync.Mutex
	state   State
	photos  []capture.Photo
	collage *collage.Collage
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle booth.
func New(seq Sequencer, comp Compositor, opts Options) *Booth {
	if opts.PrintDelay <= 0 {
		opts.PrintDelay = 500 * time.Millisecond
	}
	if opts.PrintDuration <= 0 {
		opts.PrintDuration = 5 * time.Second
	}
	return &Booth{seq: seq, comp: comp, opts: opts}
}

// State returns a copy of the current state.
func (b *Booth) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Busy reports whether a session is running.
func (b *Booth) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done != nil
}

// Photos returns the photos of the current visitor.
func (b *Booth) Photos() []capture.Photo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capture.Photo(nil), b.photos...)
}

// UpdateCapture mirrors a sequencer snapshot into the booth state.
// Wire it as the sequencer's OnState listener.
func (b *Booth) UpdateCapture(s capture.Snapshot) {
	b.update(func(st *State) {
		if st.Step != StepCapture {
			return
		}
		st.Capture = s
		if s.State == capture.StateStreamError {
			st.Error = s.Status
		}
	})
}

// Start runs a session in the background. It returns ErrBusy if one is
// already running.
func (b *Booth) Start(ctx context.Context) error {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := b.session(ctx); err != nil && !errors.Is(err, context.Canceled) {
			debug.Warn("Booth session: %v", err)
		}
		b.finish(done)
	}()
	return nil
}

// Run runs a session and waits for the result step.
func (b *Booth) Run(ctx context.Context) error {
	ctx, done, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer b.finish(done)
	return b.session(ctx)
}

// Wait blocks until the running session, if any, has returned.
func (b *Booth) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Retake cancels any running session and returns to idle, dropping the
// photos and the collage.
func (b *Booth) Retake() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	b.mu.Lock()
	b.photos = nil
	b.collage = nil
	b.mu.Unlock()
	b.update(func(st *State) { *st = State{Step: StepIdle} })
	debug.Live("Retake: back to start")
}

func (b *Booth) begin(ctx context.Context) (context.Context, chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.photos = nil
	b.collage = nil
	return ctx, b.done, nil
}

func (b *Booth) finish(done chan struct{}) {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()
	close(done)
}

func (b *Booth) session(ctx context.Context) error {
	id := uuid.NewString()
	debug.Info("Booth session %s started", id)
	b.update(func(st *State) { *st = State{Step: StepCapture, SessionID: id} })

	photos, err := b.seq.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		b.update(func(st *State) {
			if st.Error == "" {
				st.Error = capture.StatusCameraDenied
			}
		})
		return err
	}

	b.mu.Lock()
	b.photos = photos
	b.mu.Unlock()
	b.update(func(st *State) { st.Step = StepPrinting })
	debug.Section("Printing")

	col, err := b.comp.Generate(ctx, photos[0].Data, photos[1].Data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		debug.Warn("Collage generation failed: %v", err)
		b.update(func(st *State) {
			st.Step = StepResult
			st.Error = "Failed to generate collage"
		})
		return fmt.Errorf("generate collage: %w", err)
	}
	b.mu.Lock()
	b.collage = col
	b.mu.Unlock()
	b.update(func(st *State) { st.CollageID = col.ID })

	ready := time.Now()
	if err := sleep(ctx, b.opts.PrintDelay); err != nil {
		return err
	}
	b.update(func(st *State) { st.Printing = true })
	debug.Live("Printing...")

	if err := sleep(ctx, b.opts.PrintDuration-time.Since(ready)); err != nil {
		return err
	}
	b.update(func(st *State) {
		st.Step = StepResult
		st.Printing = false
	})
	debug.Live("Your card is ready")
	return nil
}

// Collage returns the result, generating it again from the photos when
// the printing step failed.
func (b *Booth) Collage(ctx context.Context) (*collage.Collage, error) {
	b.mu.Lock()
	col, photos, busy := b.collage, b.photos, b.done != nil
	b.mu.Unlock()
	if col != nil {
		return col, nil
	}
	if busy || len(photos) != capture.PhotosPerSession {
		return nil, ErrNoCollage
	}

	col, err := b.comp.Generate(ctx, photos[0].Data, photos[1].Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCollage, err)
	}
	b.mu.Lock()
	b.collage = col
	b.mu.Unlock()
	b.update(func(st *State) {
		st.CollageID = col.ID
		st.Error = ""
	})
	return col, nil
}

// Filename is the download name of a collage created at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("cupid-booth-%d.png", t.UnixMilli())
}

// Export writes the collage into dir and returns the file path.
func (b *Booth) Export(ctx context.Context, dir string) (string, error) {
	col, err := b.Collage(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, Filename(time.Now()))
	if err := os.WriteFile(path, col.Data, 0o644); err != nil {
		return "", fmt.Errorf("write collage: %w", err)
	}
	debug.Info("Collage saved to %s", path)
	return path, nil
}

func (b *Booth) update(fn func(*State)) {
	b.mu.Lock()
	fn(&b.state)
	st := b.state
	b.mu.Unlock()
	if b.opts.OnChange != nil {
		b.opts.OnChange(st)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
