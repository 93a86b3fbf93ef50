package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contentgate/internal/logger"
	"contentgate/internal/model"
	"contentgate/internal/storage"
	storeMocks "contentgate/internal/storage/mocks"
	"contentgate/internal/telemetry"
	"contentgate/internal/token"
)

type contentFixture struct {
	tokens   *token.Manager
	store    *storeMocks.MockStorage
	revs     *fakeRevocations
	recorder *fakeRecorder
	metrics  *telemetry.Metrics
	svc      ContentService
}

func newContentFixture(t *testing.T) *contentFixture {
	t.Helper()
	tm, err := token.NewManager("test-secret", "contentgate")
	require.NoError(t, err)
	f := &contentFixture{
		tokens:   tm,
		store:    new(storeMocks.MockStorage),
		revs:     &fakeRevocations{revoked: map[string]bool{}},
		recorder: &fakeRecorder{},
		metrics:  telemetry.NewUnregisteredMetrics(),
	}
	f.svc = NewContentService(tm, f.revs, f.store, f.recorder, f.metrics, logger.Discard())
	return f
}

// mint signs a 60 minute grant for videos/cardiac.mp4 issued at t0.
func (f *contentFixture) mint(t *testing.T) string {
	t.Helper()
	s, err := f.tokens.Sign(model.AccessGrant{
		ID:             "grant-1",
		Subject:        "student-42",
		ResourceID:     "unit-2",
		StorageLocator: "videos/cardiac.mp4",
		IssuedAt:       t0,
		ExpiresAt:      t0.Add(60 * time.Minute),
	})
	require.NoError(t, err)
	return s
}

func (f *contentFixture) at(d time.Duration) {
	f.tokens.NowFunc = func() time.Time { return t0.Add(d) }
}

func TestContentService_Authorize(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		token   func(f *contentFixture, t *testing.T) string
		locator string
		at      time.Duration
		setup   func(f *contentFixture)
		wantErr error
	}{
		{
			name:    "live token for its own resource",
			token:   (*contentFixture).mint,
			locator: "videos/cardiac.mp4",
			at:      time.Minute,
		},
		{
			name:    "leading slash and dot segments are normalized",
			token:   (*contentFixture).mint,
			locator: "/videos/./cardiac.mp4",
			at:      time.Minute,
		},
		{
			name:    "valid token replayed against another resource",
			token:   (*contentFixture).mint,
			locator: "videos/renal.mp4",
			at:      time.Minute,
			wantErr: ErrScopeMismatch,
		},
		{
			name:    "path escaping the store root",
			token:   (*contentFixture).mint,
			locator: "../videos/cardiac.mp4",
			at:      time.Minute,
			wantErr: ErrScopeMismatch,
		},
		{
			name:    "expired token fails expired even with wrong scope",
			token:   (*contentFixture).mint,
			locator: "videos/renal.mp4",
			at:      3601 * time.Second,
			wantErr: ErrExpired,
		},
		{
			name:    "missing token",
			token:   func(*contentFixture, *testing.T) string { return "" },
			locator: "videos/cardiac.mp4",
			wantErr: ErrUnauthenticated,
		},
		{
			name:    "garbage token",
			token:   func(*contentFixture, *testing.T) string { return "not.a.jwt" },
			locator: "videos/cardiac.mp4",
			wantErr: ErrUnauthenticated,
		},
		{
			name:    "revoked grant",
			token:   (*contentFixture).mint,
			locator: "videos/cardiac.mp4",
			at:      time.Minute,
			setup:   func(f *contentFixture) { f.revs.revoked["grant-1"] = true },
			wantErr: ErrRevoked,
		},
		{
			name:    "revocation store down fails open",
			token:   (*contentFixture).mint,
			locator: "videos/cardiac.mp4",
			at:      time.Minute,
			setup:   func(f *contentFixture) { f.revs.err = errors.New("redis down") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContentFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			raw := tt.token(f, t)
			f.at(tt.at)

			claims, err := f.svc.Authorize(ctx, raw, tt.locator)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "unit-2", claims.ResourceID)
		})
	}
}

func TestContentService_ScopeMismatchIsASecurityEvent(t *testing.T) {
	f := newContentFixture(t)
	raw := f.mint(t)
	f.at(time.Minute)

	_, err := f.svc.Authorize(context.Background(), raw, "videos/renal.mp4")

	require.ErrorIs(t, err, ErrScopeMismatch)
	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, "security.scope_mismatch", f.recorder.events[0].RoutingKey())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AccessDenied.WithLabelValues("scope_mismatch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.AccessDenied.WithLabelValues("expired")))
}

func TestContentService_Serve_ExpiryScenario(t *testing.T) {
	ctx := context.Background()
	f := newContentFixture(t)
	raw := f.mint(t)

	f.store.On("Stat", ctx, "videos/cardiac.mp4").
		Return(storage.ObjectInfo{Key: "videos/cardiac.mp4", Size: 11, ContentType: "video/mp4"}, nil)
	f.store.On("Get", ctx, "videos/cardiac.mp4").
		Return(io.NopCloser(strings.NewReader("hello video")), storage.ObjectInfo{}, nil)

	f.at(3599 * time.Second)
	d, err := f.svc.Serve(ctx, raw, "videos/cardiac.mp4", "")
	require.NoError(t, err)
	defer d.Body.Close()
	b, _ := io.ReadAll(d.Body)
	assert.Equal(t, "hello video", string(b))
	assert.False(t, d.Partial)
	assert.Equal(t, int64(11), d.Length)

	f.at(3601 * time.Second)
	d, err = f.svc.Serve(ctx, raw, "videos/cardiac.mp4", "")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Nil(t, d)

	f.store.AssertNumberOfCalls(t, "Stat", 1)
}

func TestContentService_Serve_Range(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
		wantErr   error
	}{
		{name: "bounded", header: "bytes=0-99", wantStart: 0, wantEnd: 99},
		{name: "open ended", header: "bytes=900-", wantStart: 900, wantEnd: 999},
		{name: "suffix", header: "bytes=-100", wantStart: 900, wantEnd: 999},
		{name: "end clamped to size", header: "bytes=500-5000", wantStart: 500, wantEnd: 999},
		{name: "start past end", header: "bytes=1000-", wantErr: ErrRangeNotSatisfiable},
		{name: "empty suffix", header: "bytes=-0", wantErr: ErrRangeNotSatisfiable},
		{name: "multi range", header: "bytes=0-1,5-6", wantErr: ErrRangeNotSatisfiable},
		{name: "wrong unit", header: "items=0-1", wantErr: ErrRangeNotSatisfiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContentFixture(t)
			raw := f.mint(t)
			f.at(time.Minute)

			f.store.On("Stat", ctx, "videos/cardiac.mp4").
				Return(storage.ObjectInfo{Size: 1000, ContentType: "video/mp4"}, nil)
			if tt.wantErr == nil {
				f.store.On("GetRange", ctx, "videos/cardiac.mp4", tt.wantStart, tt.wantEnd).
					Return(io.NopCloser(strings.NewReader("x")), nil)
			}

			d, err := f.svc.Serve(ctx, raw, "videos/cardiac.mp4", tt.header)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				require.NotNil(t, d)
				assert.Equal(t, int64(1000), d.Total)
				f.store.AssertNotCalled(t, "GetRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.True(t, d.Partial)
			assert.Equal(t, tt.wantStart, d.Start)
			assert.Equal(t, tt.wantEnd, d.End)
			assert.Equal(t, tt.wantEnd-tt.wantStart+1, d.Length)
			assert.Equal(t, int64(1000), d.Total)
			f.store.AssertExpectations(t)
		})
	}
}

func TestContentService_Serve_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newContentFixture(t)
	raw := f.mint(t)
	f.at(time.Minute)

	f.store.On("Stat", ctx, "videos/cardiac.mp4").Return(storage.ObjectInfo{}, storage.ErrObjectNotFound)

	d, err := f.svc.Serve(ctx, raw, "videos/cardiac.mp4", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, d)
}

func TestContentService_Serve_PagedDocumentIsViewerOnly(t *testing.T) {
	ctx := context.Background()
	f := newContentFixture(t)
	f.at(time.Minute)

	sign := func(scope model.ScopeFlags) string {
		s, err := f.tokens.Sign(model.AccessGrant{
			ID:             "grant-3",
			Subject:        "student-42",
			ResourceID:     "unit-1",
			ContentType:    model.ContentBook,
			StorageLocator: "books/anatomy.pdf",
			Scope:          scope,
			IssuedAt:       t0,
			ExpiresAt:      t0.Add(time.Hour),
		})
		require.NoError(t, err)
		return s
	}

	d, err := f.svc.Serve(ctx, sign(model.ScopeFlags{ViewOnly: true}), "books/anatomy.pdf", "")
	assert.ErrorIs(t, err, ErrViewerOnly)
	assert.Nil(t, d)
	f.store.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AccessDenied.WithLabelValues("viewer_only")))

	f.store.On("Stat", ctx, "books/anatomy.pdf").Return(storage.ObjectInfo{Size: 3, ContentType: "application/pdf"}, nil)
	f.store.On("Get", ctx, "books/anatomy.pdf").Return(io.NopCloser(strings.NewReader("pdf")), storage.ObjectInfo{Size: 3}, nil)

	d, err = f.svc.Serve(ctx, sign(model.ScopeFlags{DownloadAllowed: true}), "books/anatomy.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", d.ContentType)
}

func TestContentService_InvalidTokenDoesNoIO(t *testing.T) {
	f := newContentFixture(t)

	_, err := f.svc.Serve(context.Background(), "bogus", "videos/cardiac.mp4", "")

	assert.ErrorIs(t, err, ErrUnauthenticated)
	f.store.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
}

func TestContentService_Validate(t *testing.T) {
	f := newContentFixture(t)
	raw := f.mint(t)
	f.at(time.Minute)

	claims, err := f.svc.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "grant-1", claims.GrantID())

	f.revs.revoked["grant-1"] = true
	_, err = f.svc.Validate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestContentService_Identify(t *testing.T) {
	ctx := context.Background()
	f := newContentFixture(t)
	raw := f.mint(t)
	f.at(2 * time.Hour)
	f.revs.revoked["grant-1"] = true

	_, err := f.svc.Validate(ctx, raw)
	require.ErrorIs(t, err, ErrExpired)

	claims, err := f.svc.Identify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "grant-1", claims.GrantID())
	assert.Equal(t, "student-42", claims.Subject)

	_, err = f.svc.Identify(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.svc.Identify(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNormalizeLocator(t *testing.T) {
	assert.Equal(t, "books/a.pdf", NormalizeLocator("/books/a.pdf"))
	assert.Equal(t, "books/a.pdf", NormalizeLocator("books/x/../a.pdf"))
	assert.Equal(t, "", NormalizeLocator("../etc/passwd"))
	assert.Equal(t, "", NormalizeLocator(""))
	assert.Equal(t, "", NormalizeLocator("/"))
}
