package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by write operations when revocation is not configured.
var ErrDisabled = errors.New("revocation list disabled")

// List records revoked grants. Tokens are otherwise self-contained, so this is the only
// way to cut access before a grant expires (for example after unenrollment).
type List interface {
	// RevokeGrant rejects one grant until it would have expired anyway.
	RevokeGrant(ctx context.Context, grantID string, expiresAt time.Time) error
	// RevokeSubjectResource rejects every grant for (subject, resource) issued at or before at.
	RevokeSubjectResource(ctx context.Context, subject, resourceID string, at time.Time) error
	// IsRevoked reports whether a grant has been revoked.
	IsRevoked(ctx context.Context, grantID, subject, resourceID string, issuedAt time.Time) (bool, error)
}

// Disabled is the List used when no revocation store is configured. Nothing is ever revoked.
type Disabled struct{}

func (Disabled) RevokeGrant(context.Context, string, time.Time) error { return ErrDisabled }

func (Disabled) RevokeSubjectResource(context.Context, string, string, time.Time) error {
	return ErrDisabled
}

func (Disabled) IsRevoked(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}
