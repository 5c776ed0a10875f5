package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/msgbus/internal/bus/report"
)

const metricsNamespace = "msgbus"

// metrics holds the collectors of one bus. A nil *metrics is a no-op.
type metrics struct {
	published *prometheus.CounterVec
	unrouted  prometheus.Counter
	errors    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, b *Bus) *metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	m := &metrics{}

	m.published = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_published_total",
		Help:      "Messages published, by dispatch mode.",
	}, []string{"mode"})
	m.unrouted = f.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "messages_unrouted_total",
		Help:      "Messages published with no matching subscription.",
	})
	m.errors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "errors_total",
		Help:      "Error records reported, by kind.",
	}, []string{"kind"})

	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "handler_invocations_total",
		Help:      "Handler invocations across sync and async dispatch.",
	}, func() float64 { return float64(b.exec.Stats().Executed) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "handler_failures_total",
		Help:      "Handler invocations that returned an error or panicked.",
	}, func() float64 {
		s := b.exec.Stats()
		return float64(s.Failed + s.Panicked)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "async",
		Name:      "queue_depth",
		Help:      "Requests waiting in the async queue.",
	}, func() float64 { return float64(b.async.QueueDepth()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "async",
		Name:      "blocked_enqueues_total",
		Help:      "Async publishes that found the queue full and waited.",
	}, func() float64 { return float64(b.async.Stats().Blocked) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "async",
		Name:      "workers",
		Help:      "Live async workers.",
	}, func() float64 { return float64(b.async.Stats().Workers) })
	return m
}

func (m *metrics) observePublish(mode Mode, routed bool) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(mode.String()).Inc()
	if !routed {
		m.unrouted.Inc()
	}
}

// HandleError counts error records by kind.
func (m *metrics) HandleError(e report.Error) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(e.Kind.String()).Inc()
}
