package gpio

import (
	"sync"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Light is an active-HIGH output, used as the capture flash.
type Light struct {
	drv Driver
	pin int

	mu    sync.Mutex
	on    bool
	gen   int
	timer *time.Timer
}

// NewLight configures pin as an output and switches it off.
func NewLight(drv Driver, pin int) (*Light, error) {
	if err := drv.SetupPin(pin, Output); err != nil {
		return nil, err
	}
	if err := drv.WritePin(pin, Low); err != nil {
		return nil, err
	}
	return &Light{drv: drv, pin: pin}, nil
}

// Pulse switches the light on for d without blocking. A pulse during a
// pulse extends it.
func (l *Light) Pulse(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.on {
		if err := l.drv.WritePin(l.pin, High); err != nil {
			debug.Warn("Flash on: %v", err)
			return
		}
		l.on = true
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(d, func() { l.expire(gen) })
}

// expire switches the light off unless a later pulse took over.
func (l *Light) expire(gen int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen || !l.on {
		return
	}
	l.off()
}

func (l *Light) off() {
	l.on = false
	l.timer = nil
	if err := l.drv.WritePin(l.pin, Low); err != nil {
		debug.Warn("Flash off: %v", err)
	}
}

// Close cancels a pending pulse and switches the light off.
func (l *Light) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	l.on = false
	l.timer = nil
	return l.drv.WritePin(l.pin, Low)
}
