package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentgate/internal/events"
	"contentgate/internal/logger"
	"contentgate/internal/model"
	"contentgate/internal/repository"
)

const writeTimeout = 5 * time.Second

type job struct {
	access *model.AccessRecord
	view   *model.ViewEvent
	event  events.Event
}

// Recorder is the fire-and-forget usage log. Record calls never block the caller:
// when the queue is full the record is dropped and counted.
type Recorder struct {
	views   repository.ViewEventRepository
	pub     events.Publisher
	log     *logger.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup

	// NowFunc is replaceable in tests.
	NowFunc func() time.Time
}

// NewRecorder creates a Recorder and starts its worker.
func NewRecorder(views repository.ViewEventRepository, pub events.Publisher, log *logger.Logger, metrics *Metrics, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}
	r := &Recorder{
		views:   views,
		pub:     pub,
		log:     log,
		metrics: metrics,
		queue:   make(chan job, queueSize),
		NowFunc: time.Now,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordAccess marks that a grant was used to open content.
func (r *Recorder) RecordAccess(grantID string) {
	rec := model.AccessRecord{GrantID: grantID, RecordedAt: r.NowFunc().UTC()}
	r.enqueue(job{access: &rec})
}

// RecordProgress finalizes a viewing session. The completion percent is clamped to [0, 100].
func (r *Recorder) RecordProgress(grantID string, elapsed time.Duration, completionPercent float64) {
	if elapsed < 0 {
		elapsed = 0
	}
	if completionPercent < 0 {
		completionPercent = 0
	}
	if completionPercent > 100 {
		completionPercent = 100
	}
	end := r.NowFunc().UTC()
	ev := model.ViewEvent{
		ID:                uuid.NewString(),
		GrantID:           grantID,
		StartedAt:         end.Add(-elapsed),
		EndedAt:           end,
		CompletionPercent: completionPercent,
	}
	r.metrics.ViewDuration.Observe(elapsed.Seconds())
	r.enqueue(job{view: &ev})
}

// Emit publishes a domain event from the worker so broker latency never reaches the caller.
func (r *Recorder) Emit(ev events.Event) {
	r.enqueue(job{event: ev})
}

func (r *Recorder) enqueue(j job) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.EventsDropped.Inc()
		return
	}
	select {
	case r.queue <- j:
	default:
		r.metrics.EventsDropped.Inc()
		r.log.Warn("telemetry_dropped", logger.Fields{"reason": "queue full"})
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.queue {
		r.handle(j)
	}
}

func (r *Recorder) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch {
	case j.access != nil:
		if err := r.views.RecordAccess(ctx, *j.access); err != nil {
			r.log.Error("telemetry_record_access_failed", logger.Fields{"grant_id": j.access.GrantID, "error": err})
		}
	case j.view != nil:
		if err := r.views.Create(ctx, j.view); err != nil {
			r.log.Error("telemetry_record_progress_failed", logger.Fields{"grant_id": j.view.GrantID, "error": err})
		}
		ev := events.NewViewCompletedEvent(j.view.ID, j.view.GrantID, j.view.StartedAt, j.view.EndedAt, j.view.CompletionPercent)
		if err := r.pub.Publish(ctx, ev); err != nil {
			r.log.Error("telemetry_publish_failed", logger.Fields{"grant_id": j.view.GrantID, "error": err})
		}
	case j.event != nil:
		if err := r.pub.Publish(ctx, j.event); err != nil {
			r.log.Error("telemetry_publish_failed", logger.Fields{"routing_key": j.event.RoutingKey(), "error": err})
		}
	}
}

// Close stops accepting records and waits for queued ones to be written, or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
