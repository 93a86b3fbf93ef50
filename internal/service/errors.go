package service

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotEntitled       = errors.New("subject is not entitled to this content")
	ErrResourceNotFound  = errors.New("content unit not found")
	ErrResourceSuspended = errors.New("content unit is suspended")

	ErrUnauthenticated     = errors.New("missing or invalid access token")
	ErrExpired             = errors.New("access token expired")
	ErrScopeMismatch       = errors.New("access token is not scoped to this resource")
	ErrRevoked             = errors.New("access grant revoked")
	ErrViewerOnly          = errors.New("content is only available through the viewer")
	ErrNotFound            = errors.New("file not found")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
	ErrGrantNotFound       = errors.New("access grant not found")
	ErrGrantNotOwned       = errors.New("grant belongs to another subject")
	ErrRevocationDisabled  = errors.New("revocation is not configured")
)

// Denial reasons used as the content_access_denied_total label.
const (
	reasonNotEntitled   = "not_entitled"
	reasonSuspended     = "suspended"
	reasonUnauth        = "unauthenticated"
	reasonExpired       = "expired"
	reasonScopeMismatch = "scope_mismatch"
	reasonRevoked       = "revoked"
	reasonViewerOnly    = "viewer_only"
)
