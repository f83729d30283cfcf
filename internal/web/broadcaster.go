package web

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Event kinds sent on the status stream.
const (
	KindLog   = "log"
	KindState = "state"
)

// Event is one SSE message: a log line or a booth state snapshot.
type Event struct {
	Time  string `json:"t"`
	Kind  string `json:"kind"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg,omitempty"`
	State any    `json:"state,omitempty"`
}

// Broadcaster distributes events to multiple SSE clients.
// The latest state event is replayed to new subscribers so a page that
// connects mid-session renders the current screen at once.
type Broadcaster struct {
	mu        sync.RWMutex
	clients   map[chan string]struct{}
	lastState string
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives events and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	if b.lastState != "" {
		ch <- b.lastState
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Log sends a log line to all clients.
func (b *Broadcaster) Log(level, msg string) {
	b.publish(Event{Kind: KindLog, Level: level, Msg: msg})
}

// State sends a state snapshot to all clients and keeps it for replay.
func (b *Broadcaster) State(v any) {
	b.publish(Event{Kind: KindState, State: v})
}

// publish is non-blocking: slow clients miss events once their buffer is full.
func (b *Broadcaster) publish(evt Event) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	if evt.Kind == KindState {
		b.mu.Lock()
		b.lastState = payload
		b.mu.Unlock()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Writer returns an io.Writer that broadcasts each write as an info log
// line, for use with debug.SetOutput.
func (b *Broadcaster) Writer() io.Writer {
	return logWriter{b: b}
}

type logWriter struct {
	b *Broadcaster
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.Log("info", msg)
		}
	}
	return len(p), nil
}
