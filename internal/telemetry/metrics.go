package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the domain counters of the content pipeline.
type Metrics struct {
	GrantsIssued          prometheus.Counter
	AccessDenied          *prometheus.CounterVec
	EventsDropped         prometheus.Counter
	InteractionSuppressed *prometheus.CounterVec
	ViewDuration          prometheus.Histogram
	RenderDuration        prometheus.Histogram
}

// NewMetrics creates and registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		GrantsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_grants_issued_total",
			Help: "Total number of access grants issued.",
		}),
		AccessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_access_denied_total",
			Help: "Total number of rejected access or content requests by reason.",
		}, []string{"reason"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_events_dropped_total",
			Help: "Telemetry records dropped because the queue was full or closed.",
		}),
		InteractionSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_interactions_suppressed_total",
			Help: "Copy, print, save and context-menu attempts blocked inside protected viewers.",
		}, []string{"kind"}),
		ViewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_view_duration_seconds",
			Help:    "Reported view time per closed viewer.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viewer_page_render_duration_seconds",
			Help:    "Time to rasterize and watermark one page.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.GrantsIssued, m.AccessDenied, m.EventsDropped, m.InteractionSuppressed, m.ViewDuration, m.RenderDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewUnregisteredMetrics returns metrics bound to a throwaway registry. Useful in tests.
func NewUnregisteredMetrics() *Metrics {
	m, _ := NewMetrics(prometheus.NewRegistry())
	return m
}
