package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors for the remote server. All servers
// in a process can share one Metrics value; collectors are labeled per
// concern, not per server.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionsResumed prometheus.Counter
	EventsTotal     *prometheus.CounterVec
	EventDuration   prometheus.Histogram
	PatchesSent     prometheus.Counter
	PatchBytes      prometheus.Counter
	WireErrors      *prometheus.CounterVec
}

// NewMetrics registers the remote collectors with reg under the "loom"
// namespace. Pass prometheus.DefaultRegisterer outside tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "loom",
			Name:      "sessions_active",
			Help:      "Currently connected sessions.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "sessions_total",
			Help:      "Sessions created since start.",
		}),
		SessionsResumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "sessions_resumed_total",
			Help:      "Sessions resumed after a disconnect.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "events_total",
			Help:      "Client events dispatched, by handler prop.",
		}, []string{"prop"}),
		EventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Name:      "event_duration_seconds",
			Help:      "Wall time from event decode to patch flush.",
			Buckets:   prometheus.DefBuckets,
		}),
		PatchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "patches_sent_total",
			Help:      "Individual patch ops shipped to clients.",
		}),
		PatchBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "patch_bytes_total",
			Help:      "Encoded patch payload bytes shipped to clients.",
		}),
		WireErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "wire_errors_total",
			Help:      "Protocol-level failures, by kind.",
		}, []string{"kind"}),
	}
}
