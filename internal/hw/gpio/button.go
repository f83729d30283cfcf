package gpio

import (
	"context"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// DefaultPollInterval is how often a Button samples its pin.
const DefaultPollInterval = 5 * time.Millisecond

// Button is a push button wired between a pull-up input and ground.
// Pressed reads LOW.
type Button struct {
	drv      Driver
	pin      int
	debounce time.Duration
	poll     time.Duration
	released bool
}

// NewButton configures pin as a pull-up input.
func NewButton(drv Driver, pin int, debounce time.Duration) (*Button, error) {
	if err := drv.SetupPin(pin, InputPullUp); err != nil {
		return nil, err
	}
	poll := DefaultPollInterval
	if debounce > 0 && debounce < poll {
		poll = debounce
	}
	return &Button{drv: drv, pin: pin, debounce: debounce, poll: poll}, nil
}

// WaitPress blocks until the button has been released and then held down
// for the debounce window, or ctx is done. A button already held when
// waiting starts must be released first.
func (b *Button) WaitPress(ctx context.Context) error {
	t := time.NewTicker(b.poll)
	defer t.Stop()

	var lowSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			level, err := b.drv.ReadPin(b.pin)
			if err != nil {
				return err
			}
			if level == High {
				b.released = true
				lowSince = time.Time{}
				continue
			}
			if !b.released {
				continue
			}
			if lowSince.IsZero() {
				lowSince = now
			}
			if now.Sub(lowSince) >= b.debounce {
				b.released = false
				debug.Live("Start button pressed")
				return nil
			}
		}
	}
}
