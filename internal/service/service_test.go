package service

import (
	"context"
	"time"

	"contentgate/internal/events"
)

// fakeRecorder captures usage calls synchronously.
type fakeRecorder struct {
	accesses []string
	progress []float64
	events   []events.Event
}

func (f *fakeRecorder) RecordAccess(grantID string) { f.accesses = append(f.accesses, grantID) }

func (f *fakeRecorder) RecordProgress(_ string, _ time.Duration, completionPercent float64) {
	f.progress = append(f.progress, completionPercent)
}

func (f *fakeRecorder) Emit(ev events.Event) { f.events = append(f.events, ev) }

type fakeRevocations struct {
	revoked   map[string]bool
	err       error
	grantTTLs map[string]time.Time
	pairs     []string
}

func (f *fakeRevocations) RevokeGrant(_ context.Context, grantID string, expiresAt time.Time) error {
	if f.grantTTLs == nil {
		f.grantTTLs = map[string]time.Time{}
	}
	f.grantTTLs[grantID] = expiresAt
	return f.err
}

func (f *fakeRevocations) RevokeSubjectResource(_ context.Context, subject, resourceID string, _ time.Time) error {
	f.pairs = append(f.pairs, subject+"|"+resourceID)
	return f.err
}

func (f *fakeRevocations) IsRevoked(_ context.Context, grantID, _, _ string, _ time.Time) (bool, error) {
	return f.revoked[grantID], f.err
}
