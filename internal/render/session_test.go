package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentgate/internal/logger"
	"contentgate/internal/shield"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testGrant() Grant {
	return Grant{
		ID:        "grant-1",
		Subject:   "student-42",
		Locator:   "books/anatomy.pdf",
		ExpiresAt: base.Add(time.Hour),
		Watermark: true,
	}
}

func newTestManager(src Source, r Rasterizer) *Manager {
	m := NewManager(src, r, NewCompositor(testWatermark), Options{
		Limits:      testLimits(),
		MaxSessions: 4,
		IdleTimeout: 10 * time.Minute,
	}, logger.Discard())
	m.NowFunc = func() time.Time { return base }
	return m
}

func openReady(t *testing.T, m *Manager, mount string) *Session {
	t.Helper()
	s, err := m.Open(context.Background(), OpenRequest{MountID: mount, Grant: testGrant(), WatermarkText: "STUDENT-42"})
	require.NoError(t, err)
	require.Equal(t, StateReady, s.Snapshot().State)
	return s
}

func decode(t *testing.T, b []byte) *image.RGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	out := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// rendering reports whether a page render currently holds the session's queue.
func rendering(s *Session) bool {
	if s.renderMu.TryLock() {
		s.renderMu.Unlock()
		return false
	}
	return true
}

func TestSession_OpenReportsPages(t *testing.T) {
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 5})
	s := openReady(t, m, "mount-1")

	snap := s.Snapshot()
	assert.Equal(t, 5, snap.TotalPages)
	assert.Equal(t, 1, snap.CurrentPage)
	assert.Equal(t, 1.0, snap.Zoom)
	assert.True(t, s.Scope().Active())
}

func TestSession_PageBoundsAreNoOps(t *testing.T) {
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 5})
	s := openReady(t, m, "mount-1")

	snap, err := s.Prev()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentPage)

	for i := 0; i < 10; i++ {
		snap, err = s.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, 5, snap.CurrentPage)

	snap, err = s.GoTo(3)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentPage)

	snap, err = s.GoTo(6)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Equal(t, 3, snap.CurrentPage)

	_, err = s.GoTo(0)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestSession_ZoomClamped(t *testing.T) {
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 1})
	s := openReady(t, m, "mount-1")

	var snap Snapshot
	for i := 0; i < 20; i++ {
		snap, _ = s.ZoomIn()
		assert.LessOrEqual(t, snap.Zoom, 3.0)
	}
	assert.Equal(t, 3.0, snap.Zoom)

	for i := 0; i < 20; i++ {
		snap, _ = s.ZoomOut()
		assert.GreaterOrEqual(t, snap.Zoom, 0.5)
	}
	assert.Equal(t, 0.5, snap.Zoom)

	snap, _ = s.SetZoom(1.25)
	assert.Equal(t, 1.25, snap.Zoom)
	snap, _ = s.SetZoom(42)
	assert.Equal(t, 3.0, snap.Zoom)
	snap, _ = s.SetZoom(-1)
	assert.Equal(t, 0.5, snap.Zoom)
}

func TestSession_WatermarkOnEveryPage(t *testing.T) {
	r := &fakeRasterizer{pages: 5}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")

	plain := whitePage(1)
	for page := 1; page <= 5; page++ {
		frame, err := s.Frame(context.Background())
		require.NoError(t, err, "page %d", page)

		changed, darkest := diffPixels(decode(t, frame), plain)
		assert.Greater(t, changed, 500, "page %d has no watermark", page)
		assert.GreaterOrEqual(t, darkest, uint8(200), "page %d watermark too opaque", page)

		_, err = s.Next()
		require.NoError(t, err)
	}
}

func TestSession_FrameRerendersOnZoomAndCaches(t *testing.T) {
	r := &fakeRasterizer{pages: 2}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")
	ctx := context.Background()

	f1, err := s.Frame(ctx)
	require.NoError(t, err)
	again, err := s.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, f1, again)
	assert.Equal(t, int32(1), r.doc(0).rendered.Load())

	_, err = s.ZoomIn()
	require.NoError(t, err)
	f2, err := s.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), r.doc(0).rendered.Load())
	assert.Greater(t, decode(t, f2).Bounds().Dx(), decode(t, f1).Bounds().Dx())
}

func TestSession_UnwatermarkedGrant(t *testing.T) {
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 1})
	g := testGrant()
	g.Watermark = false
	s, err := m.Open(context.Background(), OpenRequest{MountID: "m", Grant: g, WatermarkText: "STUDENT-42"})
	require.NoError(t, err)

	frame, err := s.Frame(context.Background())
	require.NoError(t, err)
	changed, _ := diffPixels(decode(t, frame), whitePage(1))
	assert.Zero(t, changed)
}

func TestSession_SupersededRenderIsDropped(t *testing.T) {
	gate := make(chan struct{})
	r := &fakeRasterizer{pages: 5, gate: gate}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")

	type out struct {
		frame []byte
		err   error
	}
	first := make(chan out, 1)
	go func() {
		f, err := s.Frame(context.Background())
		first <- out{f, err}
	}()

	// Wait until the page 1 render holds the queue, then navigate past it.
	require.Eventually(t, func() bool { return rendering(s) }, time.Second, time.Millisecond)
	_, err := s.Next()
	require.NoError(t, err)

	select {
	case gate <- struct{}{}:
	case <-time.After(time.Second):
	}
	res := <-first
	assert.ErrorIs(t, res.err, ErrSuperseded)
	assert.Nil(t, res.frame)

	go func() { gate <- struct{}{} }()
	f, err := s.Frame(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, f)
	assert.Equal(t, 2, s.Snapshot().CurrentPage)
	assert.Equal(t, StateReady, s.Snapshot().State)
}

func TestSession_RendersAreSerialized(t *testing.T) {
	gate := make(chan struct{})
	r := &fakeRasterizer{pages: 5, gate: gate}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Frame(context.Background())
			results <- err
		}()
	}

	// Only one render may be in flight; release them one at a time.
	for i := 0; i < 3; i++ {
		select {
		case gate <- struct{}{}:
		case <-time.After(200 * time.Millisecond):
		}
	}
	wg.Wait()
	close(results)
	for err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), r.doc(0).rendered.Load(), "concurrent requests for the same page share one render")
}

func TestSession_StrayRenderAfterCloseIsNoOp(t *testing.T) {
	gate := make(chan struct{})
	r := &fakeRasterizer{pages: 2, gate: gate}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")

	done := make(chan error, 1)
	go func() {
		_, err := s.Frame(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return rendering(s) }, time.Second, time.Millisecond)

	_, err := m.Close(s.ID(), "grant-1")
	require.NoError(t, err)

	assert.ErrorIs(t, <-done, ErrSessionClosed)
	assert.True(t, s.Closed())
	assert.False(t, s.Scope().Active())
	assert.True(t, r.doc(0).closed.Load())

	_, err = s.Next()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_RenderFailureClearsFrameAndRetries(t *testing.T) {
	r := &fakeRasterizer{pages: 2}
	m := newTestManager(&fakeSource{}, r)
	s := openReady(t, m, "mount-1")
	ctx := context.Background()

	_, err := s.Frame(ctx)
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)
	r.doc(0).fail.Store(true)

	frame, err := s.Frame(ctx)
	assert.ErrorIs(t, err, ErrLoad)
	assert.Nil(t, frame)
	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.NotEmpty(t, snap.Error)

	_, err = s.Frame(ctx)
	assert.ErrorIs(t, err, ErrLoad, "a failed session never serves the stale frame")

	require.NoError(t, s.Retry(ctx))
	assert.Equal(t, StateReady, s.Snapshot().State)
	assert.Equal(t, 2, s.Snapshot().CurrentPage)
	frame, err = s.Frame(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, frame)
	assert.True(t, r.doc(0).closed.Load(), "retry releases the failed document")
}

func TestSession_RenderTimeout(t *testing.T) {
	r := &fakeRasterizer{pages: 1, gate: make(chan struct{})}
	m := NewManager(&fakeSource{}, r, NewCompositor(testWatermark), Options{
		Limits: Limits{MinZoom: 0.5, MaxZoom: 3, ZoomStep: 0.25, RenderTimeout: 20 * time.Millisecond},
	}, logger.Discard())
	m.NowFunc = func() time.Time { return base }
	s := openReady(t, m, "mount-1")

	_, err := s.Frame(context.Background())
	assert.ErrorIs(t, err, ErrLoad)
	assert.Equal(t, StateFailed, s.Snapshot().State)
}

func TestSession_GrantExpiry(t *testing.T) {
	now := base
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 1})
	m.NowFunc = func() time.Time { return now }
	s := openReady(t, m, "mount-1")

	now = base.Add(time.Hour)
	_, err := s.Frame(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, s.Retry(context.Background()), ErrAuth)
}

func TestSession_ShieldScopedToMount(t *testing.T) {
	m := newTestManager(&fakeSource{}, &fakeRasterizer{pages: 1})
	s := openReady(t, m, "mount-1")
	root := s.Scope().Root()

	ev := shield.Event{Kind: shield.EventContextMenu, Target: root + "/canvas"}
	assert.True(t, s.Scope().Handle(ev).Prevented)

	_, err := m.Close(s.ID(), "grant-1")
	require.NoError(t, err)
	assert.False(t, s.Scope().Handle(ev).Prevented)
	assert.False(t, s.Scope().Handle(shield.Event{Kind: shield.EventContextMenu, Target: "page/footer"}).Prevented)
}
