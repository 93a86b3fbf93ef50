package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"contentgate/internal/config"
)

// fakeSource serves fixed bytes, optionally failing or blocking.
type fakeSource struct {
	mu    sync.Mutex
	err   error
	block chan struct{}
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	err, block := f.err, f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("%PDF-fake"), nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeRasterizer opens documents of a fixed page count with white pages.
type fakeRasterizer struct {
	pages int
	// gate, when set, blocks every RenderPage until a value is received.
	gate   chan struct{}
	opened atomic.Int32
	docs   []*fakeDocument
	mu     sync.Mutex
}

func (r *fakeRasterizer) Open(context.Context, []byte) (Document, error) {
	r.opened.Add(1)
	d := &fakeDocument{pages: r.pages, gate: r.gate}
	r.mu.Lock()
	r.docs = append(r.docs, d)
	r.mu.Unlock()
	return d, nil
}

func (r *fakeRasterizer) doc(i int) *fakeDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[i]
}

type fakeDocument struct {
	pages    int
	gate     chan struct{}
	closed   atomic.Bool
	rendered atomic.Int32
	fail     atomic.Bool
}

func (d *fakeDocument) NumPages() int { return d.pages }

func (d *fakeDocument) RenderPage(ctx context.Context, index int, scale float64) (*image.RGBA, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.closed.Load() {
		return nil, ErrSessionClosed
	}
	if d.fail.Load() {
		return nil, errors.New("corrupt page stream")
	}
	d.rendered.Add(1)
	return whitePage(scale), nil
}

func (d *fakeDocument) Close() error {
	d.closed.Store(true)
	return nil
}

func whitePage(scale float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(400*scale), int(560*scale)))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

var testWatermark = config.WatermarkConfig{AngleDeg: -35, Opacity: 0.08, SpacingX: 220, SpacingY: 160}

func testLimits() Limits {
	return Limits{MinZoom: 0.5, MaxZoom: 3.0, ZoomStep: 0.25, RenderTimeout: 2 * time.Second}
}
