// Package fitz rasterizes PDF pages with MuPDF through go-fitz.
package fitz

import (
	"context"
	"fmt"
	"image"
	"sync"

	gofitz "github.com/gen2brain/go-fitz"

	"contentgate/internal/render"
)

// Rasterizer opens documents in memory; nothing touches local disk.
type Rasterizer struct {
	// BaseDPI is the resolution at zoom 1.
	BaseDPI float64
}

// New returns a Rasterizer. A non-positive dpi means 96.
func New(dpi float64) *Rasterizer {
	if dpi <= 0 {
		dpi = 96
	}
	return &Rasterizer{BaseDPI: dpi}
}

var _ render.Rasterizer = (*Rasterizer)(nil)

func (r *Rasterizer) Open(ctx context.Context, data []byte) (render.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := gofitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", render.ErrLoad, err)
	}
	return &document{doc: doc, pages: doc.NumPage(), dpi: r.BaseDPI}, nil
}

// document serializes MuPDF calls; a MuPDF context is not safe for concurrent use.
type document struct {
	mu     sync.Mutex
	doc    *gofitz.Document
	closed bool
	pages  int
	dpi    float64
}

func (d *document) NumPages() int { return d.pages }

type result struct {
	img *image.RGBA
	err error
}

// RenderPage returns when the page is rasterized or ctx ends, whichever is first. MuPDF
// cannot be interrupted, so an abandoned page finishes in the background and is discarded.
func (d *document) RenderPage(ctx context.Context, index int, scale float64) (*image.RGBA, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("%w: page index %d", render.ErrPageOutOfRange, index)
	}
	ch := make(chan result, 1)
	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			ch <- result{err: render.ErrSessionClosed}
			return
		}
		img, err := d.doc.ImageDPI(index, d.dpi*scale)
		ch <- result{img: img, err: err}
	}()

	select {
	case r := <-ch:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
