package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentgate/internal/events"
	"contentgate/internal/logger"
	"contentgate/internal/model"
	"contentgate/internal/repository"
	"contentgate/internal/revocation"
	"contentgate/internal/telemetry"
)

// TokenSigner mints the bearer credential for a grant.
type TokenSigner interface {
	Sign(g model.AccessGrant) (string, error)
}

// UsageRecorder is the fire-and-forget usage sink. Implementations must not block.
type UsageRecorder interface {
	RecordAccess(grantID string)
	RecordProgress(grantID string, elapsed time.Duration, completionPercent float64)
	Emit(ev events.Event)
}

// IssueResult is what the access endpoint returns to the client.
type IssueResult struct {
	Grant model.AccessGrant
	Token string
	Unit  model.ContentUnit
}

// ViewListResult is one page of a grant's view history.
type ViewListResult struct {
	Items []model.ViewEvent `json:"items"`
	Total int               `json:"total"`
}

// RevokeRequest targets either one grant or every grant for a (subject, resource) pair.
type RevokeRequest struct {
	GrantID    string
	Subject    string
	ResourceID string
	Reason     string
}

// AccessService is the access token issuer.
type AccessService interface {
	// Issue checks entitlement and mints a fresh grant. Each call returns a new grant id
	// with a reset expiry window.
	Issue(ctx context.Context, subject, resourceID, deviceType string) (*IssueResult, error)

	// RecordProgress finalizes a viewing session for a grant owned by subject.
	RecordProgress(ctx context.Context, subject, grantID string, elapsed time.Duration, completionPercent float64) error

	// ListViews pages through the finalized view events of a grant owned by subject.
	ListViews(ctx context.Context, subject, grantID string, limit, offset int) (*ViewListResult, error)

	// Revoke cuts access before natural expiry.
	Revoke(ctx context.Context, req RevokeRequest) error
}

// AccessDeps groups the collaborators of the issuer.
type AccessDeps struct {
	Units         repository.ContentUnitRepository
	Entitlements  repository.EntitlementRepository
	Grants        repository.GrantRepository
	Views         repository.ViewEventRepository
	Signer        TokenSigner
	Recorder      UsageRecorder
	Revocations   revocation.List
	Metrics       *telemetry.Metrics
	Log           *logger.Logger
	DefaultExpiry time.Duration
	// MaxExpiry caps every grant window. Subject-level revocations are kept this long.
	MaxExpiry time.Duration
}

type accessService struct {
	AccessDeps
	now func() time.Time
}

// NewAccessService constructs the issuer. A zero DefaultExpiry means 60 minutes and a zero
// MaxExpiry means 24 hours.
func NewAccessService(d AccessDeps) AccessService {
	if d.DefaultExpiry <= 0 {
		d.DefaultExpiry = 60 * time.Minute
	}
	if d.MaxExpiry <= 0 {
		d.MaxExpiry = 24 * time.Hour
	}
	if d.Revocations == nil {
		d.Revocations = revocation.Disabled{}
	}
	return &accessService{AccessDeps: d, now: time.Now}
}

func (s *accessService) Issue(ctx context.Context, subject, resourceID, deviceType string) (*IssueResult, error) {
	subject = strings.TrimSpace(subject)
	resourceID = strings.TrimSpace(resourceID)
	if subject == "" {
		return nil, ErrUnauthenticated
	}
	if resourceID == "" {
		return nil, fmt.Errorf("%w: learningUnitId is required", ErrInvalidInput)
	}
	if deviceType == "" {
		deviceType = "web"
	}
	// Unit ids are UUIDs; anything else cannot name a unit.
	if _, err := uuid.Parse(resourceID); err != nil {
		return nil, ErrResourceNotFound
	}

	unit, err := s.Units.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("load content unit: %w", err)
	}
	if unit.Status == model.StatusSuspended {
		s.Metrics.AccessDenied.WithLabelValues(reasonSuspended).Inc()
		return nil, ErrResourceSuspended
	}

	ok, err := s.Entitlements.HasEntitlement(ctx, subject, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if !ok {
		s.Metrics.AccessDenied.WithLabelValues(reasonNotEntitled).Inc()
		s.Log.Info("access_denied", logger.Fields{"event": "not_entitled", "subject": subject, "resource_id": unit.ID})
		return nil, ErrNotEntitled
	}

	window := s.DefaultExpiry
	if unit.SessionExpiryMinutes > 0 {
		window = time.Duration(unit.SessionExpiryMinutes) * time.Minute
	}
	if window > s.MaxExpiry {
		window = s.MaxExpiry
	}
	// JWT timestamps are whole seconds; the stored grant matches the token exactly.
	issuedAt := s.now().UTC().Truncate(time.Second)

	grant := model.AccessGrant{
		ID:             uuid.NewString(),
		Subject:        subject,
		ResourceID:     unit.ID,
		ContentType:    unit.Type,
		StorageLocator: unit.StorageLocator,
		DeviceType:     deviceType,
		Scope: model.ScopeFlags{
			DownloadAllowed:  unit.DownloadAllowed,
			ViewOnly:         unit.ViewOnly,
			WatermarkEnabled: unit.WatermarkEnabled,
		},
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(window),
	}

	if err := s.Grants.Create(ctx, &grant); err != nil {
		return nil, fmt.Errorf("persist grant: %w", err)
	}

	tok, err := s.Signer.Sign(grant)
	if err != nil {
		return nil, err
	}

	s.Metrics.GrantsIssued.Inc()
	s.Recorder.RecordAccess(grant.ID)
	s.Recorder.Emit(events.NewAccessGrantedEvent(grant.ID, grant.Subject, grant.ResourceID, grant.DeviceType, grant.ExpiresAt))
	s.Log.Info("access_granted", logger.Fields{
		"grant_id":    grant.ID,
		"subject":     grant.Subject,
		"resource_id": grant.ResourceID,
		"device_type": grant.DeviceType,
		"expires_at":  grant.ExpiresAt,
	})

	return &IssueResult{Grant: grant, Token: tok, Unit: *unit}, nil
}

// ownedGrant loads grantID and checks it belongs to subject.
func (s *accessService) ownedGrant(ctx context.Context, subject, grantID string) (*model.AccessGrant, error) {
	if _, err := uuid.Parse(grantID); err != nil {
		return nil, fmt.Errorf("%w: invalid grant id", ErrInvalidInput)
	}
	g, err := s.Grants.FindByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("load grant: %w", err)
	}
	if g.Subject != subject {
		return nil, ErrGrantNotOwned
	}
	return g, nil
}

func (s *accessService) RecordProgress(ctx context.Context, subject, grantID string, elapsed time.Duration, completionPercent float64) error {
	g, err := s.ownedGrant(ctx, subject, grantID)
	if err != nil {
		return err
	}
	s.Recorder.RecordProgress(g.ID, elapsed, completionPercent)
	return nil
}

func (s *accessService) ListViews(ctx context.Context, subject, grantID string, limit, offset int) (*ViewListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	g, err := s.ownedGrant(ctx, subject, grantID)
	if err != nil {
		return nil, err
	}
	res, err := s.Views.ListByGrant(ctx, g.ID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list view events: %w", err)
	}
	return &ViewListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *accessService) Revoke(ctx context.Context, req RevokeRequest) error {
	var err error
	switch {
	case req.GrantID != "":
		var g *model.AccessGrant
		g, err = s.Grants.FindByID(ctx, req.GrantID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrGrantNotFound
			}
			return fmt.Errorf("load grant: %w", err)
		}
		err = s.Revocations.RevokeGrant(ctx, g.ID, g.ExpiresAt)
	case req.Subject != "" && req.ResourceID != "":
		err = s.Revocations.RevokeSubjectResource(ctx, req.Subject, req.ResourceID, s.now().UTC())
	default:
		return fmt.Errorf("%w: grantId or subject and learningUnitId are required", ErrInvalidInput)
	}
	if err != nil {
		if errors.Is(err, revocation.ErrDisabled) {
			return ErrRevocationDisabled
		}
		return fmt.Errorf("revoke: %w", err)
	}

	s.Log.Warn("access_revoked", logger.Fields{
		"grant_id":    req.GrantID,
		"subject":     req.Subject,
		"resource_id": req.ResourceID,
		"reason":      req.Reason,
	})
	return nil
}
