package render

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrLoad is a retryable fetch, decode or rasterization failure.
	ErrLoad = errors.New("document could not be loaded")
	// ErrAuth means the grant behind the session is no longer live.
	ErrAuth = errors.New("viewer session is no longer authorized")
	// ErrNotFound is terminal: the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrSessionClosed is returned for work on, or completing after, a closed session.
	ErrSessionClosed = errors.New("viewer session closed")
	// ErrSuperseded is returned when a newer navigation or open replaced this request.
	ErrSuperseded = errors.New("render superseded by a newer request")
	// ErrPageOutOfRange is returned for an explicit page outside [1, totalPages].
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrCapacity is returned when the manager already holds the maximum number of sessions.
	ErrCapacity = errors.New("too many open viewer sessions")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("viewer session not found")
)

// Rasterizer decodes a paged document format.
type Rasterizer interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is a decoded paged document. Pages are zero-based here.
// Implementations must tolerate Close while a RenderPage is in flight.
type Document interface {
	NumPages() int
	RenderPage(ctx context.Context, index int, scale float64) (*image.RGBA, error)
	Close() error
}

// Source fetches the raw document bytes for a storage locator.
type Source interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}
