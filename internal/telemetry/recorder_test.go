package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contentgate/internal/events"
	"contentgate/internal/logger"
	"contentgate/internal/model"
	repoMocks "contentgate/internal/repository/mocks"
)

type capturePublisher struct {
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestRecorder_RecordAccessAndProgress(t *testing.T) {
	views := new(repoMocks.MockViewEventRepository)
	pub := &capturePublisher{}
	r := NewRecorder(views, pub, logger.Discard(), NewUnregisteredMetrics(), 8)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.NowFunc = func() time.Time { return now }

	views.On("RecordAccess", mock.Anything, model.AccessRecord{GrantID: "grant-1", RecordedAt: now}).Return(nil).Once()
	views.On("Create", mock.Anything, mock.MatchedBy(func(ev *model.ViewEvent) bool {
		return ev.GrantID == "grant-1" &&
			ev.EndedAt.Equal(now) &&
			ev.StartedAt.Equal(now.Add(-90*time.Second)) &&
			ev.CompletionPercent == 100
	})).Return(nil).Once()

	r.RecordAccess("grant-1")
	r.RecordProgress("grant-1", 90*time.Second, 140)

	require.NoError(t, r.Close(context.Background()))
	views.AssertExpectations(t)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "view.completed", pub.events[0].RoutingKey())
}

func TestRecorder_Emit(t *testing.T) {
	views := new(repoMocks.MockViewEventRepository)
	pub := &capturePublisher{}
	r := NewRecorder(views, pub, logger.Discard(), NewUnregisteredMetrics(), 4)

	r.Emit(events.NewSecurityEvent(events.ScopeMismatch, "grant-1", "student-42", "videos/b.mp4", "locator mismatch"))
	require.NoError(t, r.Close(context.Background()))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "security.scope_mismatch", pub.events[0].RoutingKey())
}

func TestRecorder_FailuresAreNonFatal(t *testing.T) {
	views := new(repoMocks.MockViewEventRepository)
	r := NewRecorder(views, events.NopPublisher{}, logger.Discard(), NewUnregisteredMetrics(), 8)

	views.On("RecordAccess", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	views.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	assert.NotPanics(t, func() {
		r.RecordAccess("grant-1")
		r.RecordProgress("grant-1", -time.Second, -5)
	})
	require.NoError(t, r.Close(context.Background()))
	views.AssertExpectations(t)
}

func TestRecorder_DropsAfterClose(t *testing.T) {
	views := new(repoMocks.MockViewEventRepository)
	metrics := NewUnregisteredMetrics()
	r := NewRecorder(views, events.NopPublisher{}, logger.Discard(), metrics, 1)
	require.NoError(t, r.Close(context.Background()))

	r.RecordAccess("grant-1")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsDropped))
	views.AssertNotCalled(t, "RecordAccess", mock.Anything, mock.Anything)
}

func TestRecorder_QueueFullDoesNotBlock(t *testing.T) {
	views := new(repoMocks.MockViewEventRepository)
	metrics := NewUnregisteredMetrics()
	release := make(chan struct{})
	views.On("RecordAccess", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	r := NewRecorder(views, events.NopPublisher{}, logger.Discard(), metrics, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.RecordAccess("grant-1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordAccess blocked on a full queue")
	}
	close(release)
	require.NoError(t, r.Close(context.Background()))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.EventsDropped), 3.0)
}
