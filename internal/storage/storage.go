// Package storage is the opaque byte store behind protected content. Keys are storage
// locators such as "books/anatomy.pdf"; nothing here knows about grants or tokens.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when no object exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Storage is a read-only, S3-compatible byte store.
// Methods use context and streaming readers; no local disk is used.
type Storage interface {
	// Stat returns object info without fetching content.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Get retrieves an object's full content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// GetRange retrieves the inclusive byte range [start, end] of an object.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
}
