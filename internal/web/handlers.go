package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/booth"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
)

// MinStartInterval is the minimum time between two accepted session starts.
const MinStartInterval = 5 * time.Second

// PreviewQuality is the JPEG quality of live preview frames.
const PreviewQuality = 80

// Booth is the session controller behind the HTTP API.
type Booth interface {
	Start(ctx context.Context) error
	Retake()
	Busy() bool
	State() booth.State
	Collage(ctx context.Context) (*collage.Collage, error)
}

// Previewer returns the live camera frame as JPEG.
type Previewer interface {
	Preview(quality int) ([]byte, error)
}

// PublicConfig is the card geometry and pacing shown by the page.
type PublicConfig struct {
	CanvasWidth   int    `json:"canvas_width"`
	CanvasHeight  int    `json:"canvas_height"`
	PhotoWidth    int    `json:"photo_width"`
	PhotoHeight   int    `json:"photo_height"`
	CountdownFrom int    `json:"countdown_from"`
	FlashMs       int    `json:"flash_ms"`
	TemplateURL   string `json:"template_url,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *Broadcaster
	Booth       Booth
	Preview     Previewer
	Public      PublicConfig
	staticFS    fs.FS

	// baseCtx outlives requests: sessions started over HTTP are bound to it.
	baseCtx context.Context

	startMu   sync.Mutex
	lastStart time.Time
	now       func() time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If b is nil, session endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *Broadcaster, b Booth, preview Previewer, public PublicConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Booth:       b,
		Preview:     preview,
		Public:      public,
		staticFS:    staticFS,
		baseCtx:     context.Background(),
		now:         time.Now,
	}
}

// HandleConfig returns the public card configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Public)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStartSession handles POST /session: the landing page "Start" button.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Booth == nil {
		http.Error(w, "booth not configured", http.StatusServiceUnavailable)
		return
	}
	if h.Booth.Busy() {
		http.Error(w, "session already in progress", http.StatusConflict)
		return
	}

	h.startMu.Lock()
	now := h.now()
	if !h.lastStart.IsZero() && now.Sub(h.lastStart) < MinStartInterval {
		h.startMu.Unlock()
		http.Error(w, "too many requests, wait before starting again", http.StatusTooManyRequests)
		return
	}
	err := h.Booth.Start(h.baseCtx)
	if err == nil {
		h.lastStart = now
	}
	h.startMu.Unlock()

	if errors.Is(err, booth.ErrBusy) {
		http.Error(w, "session already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	debug.Info("Session started from %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleRetake handles POST /retake: drop the photos and go back to start.
func (h *Handlers) HandleRetake(w http.ResponseWriter, r *http.Request) {
	if h.Booth == nil {
		http.Error(w, "booth not configured", http.StatusServiceUnavailable)
		return
	}
	h.Booth.Retake()
	writeJSON(w, http.StatusOK, h.Booth.State())
}

// HandleState returns the current booth state as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.Booth == nil {
		http.Error(w, "booth not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Booth.State())
}

// HandlePreview serves the current live frame, cropped and mirrored.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.Preview == nil {
		http.Error(w, "preview not configured", http.StatusServiceUnavailable)
		return
	}
	data, err := h.Preview.Preview(PreviewQuality)
	if errors.Is(err, capture.ErrNoStream) {
		http.Error(w, "no live stream", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "preview failed", http.StatusInternalServerError)
		debug.Verbose("Preview: %v", err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleCollage serves the result card. It is an attachment named
// cupid-booth-<ms>.png unless ?inline=1 is given (the result screen).
func (h *Handlers) HandleCollage(w http.ResponseWriter, r *http.Request) {
	if h.Booth == nil {
		http.Error(w, "booth not configured", http.StatusServiceUnavailable)
		return
	}
	col, err := h.Booth.Collage(r.Context())
	if err != nil {
		http.Error(w, "no collage available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("inline") == "" && !col.CreatedAt.IsZero() {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", booth.Filename(col.CreatedAt)))
	} else {
		w.Header().Set("Content-Disposition", "inline")
	}
	if _, err := w.Write(col.Data); err != nil {
		debug.Warn("Download of collage %s failed: %v", col.ID, err)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return

		case <-h.baseCtx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
