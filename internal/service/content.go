package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"contentgate/internal/events"
	"contentgate/internal/logger"
	"contentgate/internal/revocation"
	"contentgate/internal/storage"
	"contentgate/internal/telemetry"
	"contentgate/internal/token"
)

// TokenVerifier checks a bearer credential without touching storage.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
	VerifyAllowExpired(tokenString string) (*token.Claims, error)
}

// Delivery is a validated byte stream ready to be written to the client.
// The caller must close Body.
type Delivery struct {
	Body         io.ReadCloser
	ContentType  string
	ETag         string
	LastModified time.Time
	// Length is the number of bytes in Body.
	Length int64
	// Total is the full object size.
	Total   int64
	Start   int64
	End     int64
	Partial bool
	Claims  *token.Claims
}

// ContentService is the token-gated content server.
type ContentService interface {
	// Validate checks signature, expiry and revocation. It does not look at any resource.
	Validate(ctx context.Context, rawToken string) (*token.Claims, error)

	// Identify checks the signature and issuer only. An expired or revoked token still names
	// the grant it was minted for, which is all that ending that grant's own session needs.
	Identify(ctx context.Context, rawToken string) (*token.Claims, error)

	// Authorize is Validate plus the check that the token is scoped to locator.
	Authorize(ctx context.Context, rawToken, locator string) (*token.Claims, error)

	// Serve authorizes and opens the object, honoring a single "bytes=" range.
	Serve(ctx context.Context, rawToken, locator, rangeHeader string) (*Delivery, error)
}

type contentService struct {
	tokens   TokenVerifier
	revoked  revocation.List
	store    storage.Storage
	recorder UsageRecorder
	metrics  *telemetry.Metrics
	log      *logger.Logger
}

// NewContentService constructs a ContentService. A nil revocation list disables revocation checks.
func NewContentService(tokens TokenVerifier, revoked revocation.List, store storage.Storage, recorder UsageRecorder, metrics *telemetry.Metrics, log *logger.Logger) ContentService {
	if revoked == nil {
		revoked = revocation.Disabled{}
	}
	return &contentService{
		tokens:   tokens,
		revoked:  revoked,
		store:    store,
		recorder: recorder,
		metrics:  metrics,
		log:      log,
	}
}

// NormalizeLocator cleans a requested path into a storage locator. It returns "" for paths
// that escape the store root.
func NormalizeLocator(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func (s *contentService) verify(rawToken string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, token.ErrExpired) {
		s.metrics.AccessDenied.WithLabelValues(reasonExpired).Inc()
		s.log.Info("token_rejected", logger.Fields{"event": "token_expired"})
		return nil, ErrExpired
	}
	s.metrics.AccessDenied.WithLabelValues(reasonUnauth).Inc()
	s.log.Info("token_rejected", logger.Fields{"event": "token_invalid", "error": err})
	return nil, ErrUnauthenticated
}

func (s *contentService) checkRevoked(ctx context.Context, c *token.Claims) error {
	var issuedAt time.Time
	if c.IssuedAt != nil {
		issuedAt = c.IssuedAt.Time
	}
	revoked, err := s.revoked.IsRevoked(ctx, c.GrantID(), c.Subject, c.ResourceID, issuedAt)
	if err != nil {
		// The revocation store is advisory; tokens stay self-contained when it is down.
		s.log.Warn("revocation_check_failed", logger.Fields{"grant_id": c.GrantID(), "error": err})
		return nil
	}
	if revoked {
		s.metrics.AccessDenied.WithLabelValues(reasonRevoked).Inc()
		s.log.Info("token_rejected", logger.Fields{"event": "grant_revoked", "grant_id": c.GrantID()})
		return ErrRevoked
	}
	return nil
}

func (s *contentService) Validate(ctx context.Context, rawToken string) (*token.Claims, error) {
	if rawToken == "" {
		s.metrics.AccessDenied.WithLabelValues(reasonUnauth).Inc()
		return nil, ErrUnauthenticated
	}
	claims, err := s.verify(rawToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *contentService) Identify(_ context.Context, rawToken string) (*token.Claims, error) {
	if rawToken == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.VerifyAllowExpired(rawToken)
	if err != nil {
		s.log.Info("token_rejected", logger.Fields{"event": "token_invalid", "error": err})
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func (s *contentService) Authorize(ctx context.Context, rawToken, locator string) (*token.Claims, error) {
	if rawToken == "" {
		s.metrics.AccessDenied.WithLabelValues(reasonUnauth).Inc()
		return nil, ErrUnauthenticated
	}
	// Signature and expiry first: no storage or revocation I/O for a bad token.
	claims, err := s.verify(rawToken)
	if err != nil {
		return nil, err
	}

	requested := NormalizeLocator(locator)
	if requested == "" || requested != claims.Locator {
		s.metrics.AccessDenied.WithLabelValues(reasonScopeMismatch).Inc()
		s.log.Warn("security_event", logger.Fields{
			"event":       "security_scope_mismatch",
			"grant_id":    claims.GrantID(),
			"subject":     claims.Subject,
			"resource_id": claims.ResourceID,
			"requested":   locator,
		})
		s.recorder.Emit(events.NewSecurityEvent(events.ScopeMismatch, claims.GrantID(), claims.Subject, locator, "token locator does not match requested resource"))
		return nil, ErrScopeMismatch
	}

	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *contentService) Serve(ctx context.Context, rawToken, locator, rangeHeader string) (*Delivery, error) {
	claims, err := s.Authorize(ctx, rawToken, locator)
	if err != nil {
		return nil, err
	}
	// Paged documents reach the client as watermarked frames only.
	if claims.ContentType.Paged() && !claims.Scope.DownloadAllowed {
		s.metrics.AccessDenied.WithLabelValues(reasonViewerOnly).Inc()
		s.log.Info("token_rejected", logger.Fields{"event": "viewer_only", "grant_id": claims.GrantID()})
		return nil, ErrViewerOnly
	}

	info, err := s.store.Stat(ctx, claims.Locator)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	d := &Delivery{
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		Total:        info.Size,
		Claims:       claims,
	}
	if d.ContentType == "" {
		d.ContentType = "application/octet-stream"
	}

	if rangeHeader == "" {
		body, _, err := s.store.Get(ctx, claims.Locator)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("get object: %w", err)
		}
		d.Body = body
		d.Length = info.Size
		if info.Size > 0 {
			d.End = info.Size - 1
		}
		return d, nil
	}

	start, end, err := parseRange(rangeHeader, info.Size)
	if err != nil {
		return d, err
	}
	body, err := s.store.GetRange(ctx, claims.Locator, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object range: %w", err)
	}
	d.Body = body
	d.Start, d.End = start, end
	d.Length = end - start + 1
	d.Partial = true
	return d, nil
}

// parseRange accepts one "bytes=" range. Multi-range requests are not satisfiable here.
func parseRange(header string, size int64) (int64, int64, error) {
	if size <= 0 || strings.Contains(header, ",") {
		return 0, 0, ErrRangeNotSatisfiable
	}
	start, end, err := fasthttp.ParseByteRange([]byte(header), int(size))
	if err != nil || start > end {
		return 0, 0, ErrRangeNotSatisfiable
	}
	return int64(start), int64(end), nil
}
