// Package collage composes the two session photos onto the printable card.
package collage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/BoothGo/internal/asset"
	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/geometry"
	"github.com/cjeanneret/BoothGo/internal/telemetry"
)

// ErrPhotoDecode is returned when either photo cannot be decoded.
var ErrPhotoDecode = errors.New("photo decode failed")

// Default card colors.
var (
	DefaultBackground = color.RGBA{0xff, 0xff, 0xff, 0xff} // #ffffff
	DefaultFallback   = color.RGBA{0xff, 0xc2, 0xd1, 0xff} // #ffc2d1
)

// Options configures a Compositor. Zero values take the card defaults.
type Options struct {
	Layout     geometry.Layout
	Background color.Color
	Fallback   color.Color
	Memoize    int // cached collages, 0 = none
}

// Collage is the encoded card.
type Collage struct {
	ID           string    `json:"id"`
	Data         []byte    `json:"-"` // PNG, shared with the cache: do not modify
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	TemplateUsed bool      `json:"template_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// Compositor draws photos into the layout over a template.
type Compositor struct {
	loader asset.Loader
	opts   Options
	memo   *lru.Cache[[sha256.Size]byte, *Collage]
}

// NewCompositor validates the layout and prepares the optional cache.
// A nil loader always uses the fallback fill.
func NewCompositor(loader asset.Loader, opts Options) (*Compositor, error) {
	if opts.Layout == (geometry.Layout{}) {
		opts.Layout = geometry.DefaultLayout()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("collage layout: %w", err)
	}
	if opts.Background == nil {
		opts.Background = DefaultBackground
	}
	if opts.Fallback == nil {
		opts.Fallback = DefaultFallback
	}
	c := &Compositor{loader: loader, opts: opts}
	if opts.Memoize > 0 {
		memo, err := lru.New[[sha256.Size]byte, *Collage](opts.Memoize)
		if err != nil {
			return nil, fmt.Errorf("collage cache: %w", err)
		}
		c.memo = memo
	}
	return c, nil
}

// Layout returns the validated layout.
func (c *Compositor) Layout() geometry.Layout {
	return c.opts.Layout
}

// Generate decodes both photos and loads the template concurrently, then
// draws and encodes the card as PNG. A photo that cannot be decoded fails
// the call; a missing template is replaced by the fallback fill.
func (c *Compositor) Generate(ctx context.Context, photo1, photo2 []byte) (col *Collage, err error) {
	ctx, span := telemetry.Start(ctx, "collage.generate")
	defer func() { telemetry.End(span, err) }()

	key := memoKey(photo1, photo2)
	if c.memo != nil {
		if hit, ok := c.memo.Get(key); ok {
			debug.Verbose("Collage: cache hit %s", hit.ID)
			span.SetAttributes(attribute.Bool("collage.cached", true))
			return hit, nil
		}
	}

	start := time.Now()
	var (
		tmpl    image.Image
		tmplErr error
		imgs    [2]image.Image
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tmpl, tmplErr = c.loadTemplate(gctx)
		return nil
	})
	for i, data := range [2][]byte{photo1, photo2} {
		g.Go(func() error {
			img, _, err := asset.Decode(data)
			if err != nil {
				return fmt.Errorf("%w: photo %d: %v", ErrPhotoDecode, i+1, err)
			}
			imgs[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if tmplErr != nil {
		debug.Warn("Template unavailable, using fallback fill: %v", tmplErr)
		span.RecordError(tmplErr)
		tmpl = nil
	}

	canvas := c.Compose(tmpl, imgs[0], imgs[1])
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	col = &Collage{
		ID:           uuid.NewString(),
		Data:         buf.Bytes(),
		Width:        c.opts.Layout.Width,
		Height:       c.opts.Layout.Height,
		TemplateUsed: tmpl != nil,
		CreatedAt:    time.Now(),
	}
	span.SetAttributes(attribute.Bool("collage.template_used", col.TemplateUsed))
	debug.Info("Collage %s ready in %v", col.ID, time.Since(start).Round(time.Millisecond))
	debug.Bytes("Collage", len(col.Data))

	if c.memo != nil {
		c.memo.Add(key, col)
	}
	return col, nil
}

func (c *Compositor) loadTemplate(ctx context.Context) (image.Image, error) {
	if c.loader == nil {
		return nil, asset.ErrTemplateUnavailable
	}
	return c.loader.Load(ctx)
}

// Compose draws the card: background, then the template stretched over the
// canvas (or the fallback fill when tmpl is nil), then each photo
// cover-fitted into its slot.
func (c *Compositor) Compose(tmpl, photo1, photo2 image.Image) *image.RGBA {
	l := c.opts.Layout
	canvas := image.NewRGBA(l.Bounds())
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c.opts.Background), image.Point{}, draw.Src)

	if tmpl != nil {
		draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), tmpl, tmpl.Bounds(), draw.Over, nil)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c.opts.Fallback), image.Point{}, draw.Src)
	}

	for i, p := range [2]image.Image{photo1, photo2} {
		drawCover(canvas, l.Slots[i], p)
	}
	return canvas
}

// drawCover scales src to cover slot and clips everything outside it.
func drawCover(dst *image.RGBA, slot image.Rectangle, src image.Image) {
	sb := src.Bounds()
	if sb.Empty() || slot.Empty() {
		return
	}
	clip := dst.SubImage(slot).(*image.RGBA)
	dr := geometry.Cover(sb.Dx(), sb.Dy(), geometry.RectFrom(slot)).Pixels()
	draw.CatmullRom.Scale(clip, dr, src, sb, draw.Over, nil)
}

func memoKey(photo1, photo2 []byte) [sha256.Size]byte {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(photo1)))
	h.Write(n[:])
	h.Write(photo1)
	h.Write(photo2)
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))
	return key
}
