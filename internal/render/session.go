package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"contentgate/internal/shield"
)

var tracer = otel.Tracer("contentgate/render")

// State is the lifecycle state of a viewer session.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

// Grant is the slice of an access grant a viewer session needs.
type Grant struct {
	ID        string
	Subject   string
	Locator   string
	ExpiresAt time.Time
	Watermark bool
}

// Limits bounds navigation and rendering.
type Limits struct {
	MinZoom       float64
	MaxZoom       float64
	ZoomStep      float64
	RenderTimeout time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MinZoom <= 0 {
		l.MinZoom = 0.5
	}
	if l.MaxZoom < l.MinZoom {
		l.MaxZoom = 3.0
	}
	if l.ZoomStep <= 0 {
		l.ZoomStep = 0.25
	}
	if l.RenderTimeout <= 0 {
		l.RenderTimeout = 20 * time.Second
	}
	return l
}

// Snapshot is the client-visible state of a session.
type Snapshot struct {
	ID          string  `json:"sessionId"`
	MountID     string  `json:"mountId"`
	State       State   `json:"state"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	Zoom        float64 `json:"zoom"`
	MinZoom     float64 `json:"minZoom"`
	MaxZoom     float64 `json:"maxZoom"`
	Error       string  `json:"error,omitempty"`
}

// Session is the server half of one mounted document viewer. It owns at most one loaded
// document and paints at most one page at a time. Navigation that lands while a page is
// rendering supersedes it; the stale frame is dropped rather than shown.
type Session struct {
	id       string
	mountID  string
	grant    Grant
	limits   Limits
	text     string
	comp     *Compositor
	loader   func(ctx context.Context) (Document, error)
	scope    *shield.Scope
	observe  func(time.Duration)
	now      func() time.Time
	openedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// renderMu is the depth-1 render queue.
	renderMu sync.Mutex

	mu       sync.Mutex
	state    State
	err      error
	doc      Document
	total    int
	page     int
	zoom     float64
	gen      uint64
	frame    []byte
	frameGen uint64
	touched  time.Time
}

func (s *Session) ID() string { return s.id }
func (s *Session) MountID() string { return s.mountID }
func (s *Session) Grant() Grant { return s.grant }
func (s *Session) Scope() *shield.Scope { return s.scope }
func (s *Session) OpenedAt() time.Time { return s.openedAt }
func (s *Session) WatermarkText() string { return s.text }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		MountID:     s.mountID,
		State:       s.state,
		CurrentPage: s.page,
		TotalPages:  s.total,
		Zoom:        s.zoom,
		MinZoom:     s.limits.MinZoom,
		MaxZoom:     s.limits.MaxZoom,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Err returns the failure that put the session into StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// bounded derives a context that ends at the render timeout or when the session closes.
func (s *Session) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.limits.RenderTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAuth), errors.Is(err, ErrLoad):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out", ErrLoad)
	default:
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}
}

func (s *Session) failLocked(err error) error {
	s.state = StateFailed
	s.err = err
	s.frame = nil
	return err
}

// reload fetches and decodes the document, replacing any previous one.
func (s *Session) reload(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.err = nil
	s.frame = nil
	old := s.doc
	s.doc = nil
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	lctx, cancel := s.bounded(ctx)
	doc, err := s.loader(lctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || gen != s.gen {
		if doc != nil {
			_ = doc.Close()
		}
		if s.state == StateClosed {
			return ErrSessionClosed
		}
		return ErrSuperseded
	}
	if err != nil {
		return s.failLocked(classify(err))
	}
	n := doc.NumPages()
	if n <= 0 {
		_ = doc.Close()
		return s.failLocked(fmt.Errorf("%w: document has no pages", ErrLoad))
	}
	s.doc = doc
	s.total = n
	if s.page < 1 || s.page > n {
		s.page = 1
	}
	s.state = StateReady
	s.touched = s.now()
	return nil
}

// Retry reloads the document after a failure. It is a no-op on a ready session.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateClosed:
		return ErrSessionClosed
	case StateReady:
		return nil
	}
	if !s.grant.liveAt(s.now()) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.failLocked(ErrAuth)
	}
	return s.reload(ctx)
}

func (g Grant) liveAt(t time.Time) bool {
	return t.Before(g.ExpiresAt)
}

// Frame returns the current page as a PNG with the watermark fused into its pixels.
// A frame is never returned for a page or zoom other than the current one.
func (s *Session) Frame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.frame != nil && s.frameGen == s.gen {
		f := s.frame
		s.mu.Unlock()
		return f, nil
	}
	gen := s.gen
	s.mu.Unlock()

	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if gen != s.gen {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	if s.frame != nil && s.frameGen == gen {
		f := s.frame
		s.mu.Unlock()
		return f, nil
	}
	doc, page, zoom := s.doc, s.page, s.zoom
	s.mu.Unlock()

	start := s.now()
	rctx, cancel := s.bounded(ctx)
	rctx, span := tracer.Start(rctx, "render.page", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("page", page),
		attribute.Float64("zoom", zoom),
	))
	img, err := doc.RenderPage(rctx, page-1, zoom)
	var buf bytes.Buffer
	if err == nil {
		if s.grant.Watermark {
			s.comp.Apply(img, s.text, zoom)
		}
		err = png.Encode(&buf, img)
	}
	if err == nil && rctx.Err() != nil {
		err = rctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
	}
	span.End()
	cancel()
	if s.observe != nil {
		s.observe(s.now().Sub(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A render that completes after close or after newer navigation paints nothing.
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	if gen != s.gen {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, s.failLocked(classify(err))
	}
	s.frame = buf.Bytes()
	s.frameGen = gen
	s.touched = s.now()
	return s.frame, nil
}

func (s *Session) readyLocked() error {
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateFailed:
		return s.err
	case StateLoading:
		return fmt.Errorf("%w: document is loading", ErrSuperseded)
	}
	if !s.grant.liveAt(s.now()) {
		return s.failLocked(ErrAuth)
	}
	return nil
}

func (s *Session) navigate(change func() bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return s.snapshotLocked(), err
	}
	if change() {
		s.gen++
		s.frame = nil
	}
	s.touched = s.now()
	return s.snapshotLocked(), nil
}

// Next advances one page. It is a no-op on the last page.
func (s *Session) Next() (Snapshot, error) {
	return s.navigate(func() bool {
		if s.page >= s.total {
			return false
		}
		s.page++
		return true
	})
}

// Prev goes back one page. It is a no-op on page 1.
func (s *Session) Prev() (Snapshot, error) {
	return s.navigate(func() bool {
		if s.page <= 1 {
			return false
		}
		s.page--
		return true
	})
}

// GoTo jumps to page n (1-based).
func (s *Session) GoTo(n int) (Snapshot, error) {
	var rangeErr error
	snap, err := s.navigate(func() bool {
		if n < 1 || n > s.total {
			rangeErr = fmt.Errorf("%w: %d not in [1, %d]", ErrPageOutOfRange, n, s.total)
			return false
		}
		if n == s.page {
			return false
		}
		s.page = n
		return true
	})
	if err != nil {
		return snap, err
	}
	return snap, rangeErr
}

// ZoomIn raises the scale by one step, up to MaxZoom.
func (s *Session) ZoomIn() (Snapshot, error) {
	return s.navigate(func() bool { return s.setZoomLocked(s.zoom + s.limits.ZoomStep) })
}

// ZoomOut lowers the scale by one step, down to MinZoom.
func (s *Session) ZoomOut() (Snapshot, error) {
	return s.navigate(func() bool { return s.setZoomLocked(s.zoom - s.limits.ZoomStep) })
}

// SetZoom sets the scale, clamped to [MinZoom, MaxZoom].
func (s *Session) SetZoom(z float64) (Snapshot, error) {
	return s.navigate(func() bool { return s.setZoomLocked(z) })
}

func (s *Session) setZoomLocked(z float64) bool {
	z = s.clampZoom(z)
	if z == s.zoom {
		return false
	}
	s.zoom = z
	return true
}

func (s *Session) clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return s.zoom
	}
	z = math.Round(z*1000) / 1000
	if z < s.limits.MinZoom {
		return s.limits.MinZoom
	}
	if z > s.limits.MaxZoom {
		return s.limits.MaxZoom
	}
	return z
}

// Close cancels in-flight work, releases the document and deactivates the shield.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.gen++
	s.frame = nil
	doc := s.doc
	s.doc = nil
	s.mu.Unlock()

	s.cancel()
	s.scope.Deactivate()
	if doc != nil {
		_ = doc.Close()
	}
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosed
}

func (s *Session) reapable(now time.Time, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.grant.liveAt(now) {
		return true
	}
	return idle > 0 && now.Sub(s.touched) > idle
}

func (s *Session) touch() {
	s.mu.Lock()
	s.touched = s.now()
	s.mu.Unlock()
}
