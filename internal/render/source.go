package render

import (
	"context"
	"errors"
	"fmt"
	"io"

	"contentgate/internal/storage"
)

// MaxDocumentBytes caps how much of an object is buffered for decoding.
const MaxDocumentBytes = 256 << 20

// StorageSource reads documents from the byte store.
type StorageSource struct {
	Store storage.Storage
}

func (s StorageSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	rc, _, err := s.Store.Get(ctx, locator)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: fetch: %v", ErrLoad, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrLoad, err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("%w: document larger than %d bytes", ErrLoad, MaxDocumentBytes)
	}
	return data, nil
}
