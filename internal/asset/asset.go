// Package asset loads the collage template image from a URL, a file or memory.
//
// Loaders only fetch and decode. Deciding what to draw when a template is
// missing belongs to the caller.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/telemetry"
)

// MaxAssetBytes caps how much of a template body is read.
const MaxAssetBytes int64 = 16 << 20

// DefaultTimeout bounds an HTTP template fetch when none is configured.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTemplateUnavailable wraps every failure to produce a template image.
	ErrTemplateUnavailable = errors.New("template unavailable")
	// ErrBadStatus is returned for non-2xx HTTP responses.
	ErrBadStatus = errors.New("unexpected HTTP status")
	// ErrTooLarge is returned when the body exceeds the size cap.
	ErrTooLarge = errors.New("asset exceeds size limit")
)

// Loader produces a decoded template image.
type Loader interface {
	Load(ctx context.Context) (image.Image, error)
}

// Decode decodes PNG, JPEG, GIF, WebP or BMP data.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// HTTPLoader fetches the template from a URL.
type HTTPLoader struct {
	URL      string
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

// NewHTTPLoader creates a loader for url with the given fetch timeout.
func NewHTTPLoader(url string, timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPLoader{URL: url, Client: http.DefaultClient, Timeout: timeout, MaxBytes: MaxAssetBytes}
}

// Load fetches and decodes the template.
func (l *HTTPLoader) Load(ctx context.Context) (img image.Image, err error) {
	ctx, span := telemetry.Start(ctx, "asset.load")
	defer func() { telemetry.End(span, err) }()

	if l.URL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrTemplateUnavailable)
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrTemplateUnavailable, l.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w: %s", ErrTemplateUnavailable, ErrBadStatus, resp.Status)
	}
	data, err := readLimited(resp.Body, l.MaxBytes)
	if err != nil {
		return nil, err
	}
	img, format, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	debug.Bytes("Template "+format, len(data))
	debug.Verbose("Asset: fetched %s in %v", l.URL, time.Since(start).Round(time.Millisecond))
	return img, nil
}

// FileLoader reads the template from disk.
type FileLoader struct {
	Path     string
	MaxBytes int64
}

// NewFileLoader creates a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path, MaxBytes: MaxAssetBytes}
}

// Load reads and decodes the file.
func (l *FileLoader) Load(ctx context.Context) (img image.Image, err error) {
	_, span := telemetry.Start(ctx, "asset.load")
	defer func() { telemetry.End(span, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	defer f.Close()

	data, err := readLimited(f, l.MaxBytes)
	if err != nil {
		return nil, err
	}
	img, _, err = Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateUnavailable, l.Path, err)
	}
	debug.Verbose("Asset: loaded %s", l.Path)
	return img, nil
}

// BytesLoader decodes an in-memory image, e.g. an embedded template.
type BytesLoader struct {
	Data []byte
}

// Load decodes the bytes.
func (l BytesLoader) Load(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(l.Data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrTemplateUnavailable)
	}
	img, _, err := Decode(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	return img, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxAssetBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrTemplateUnavailable, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %w", ErrTemplateUnavailable, ErrTooLarge)
	}
	return data, nil
}
