package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the coordinator's prometheus instrumentation: per-message
// throughput, latency, and error-kind breakdown, plus how often a worker had
// to spin on a blocked order id.
type Metrics struct {
	Processed  *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	BlockWaits prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_core_messages_processed_total",
			Help: "Messages processed by the coordinator, by message type.",
		}, []string{"message_type"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_core_message_errors_total",
			Help: "Executor errors, by message type and error kind.",
		}, []string{"message_type", "kind"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_core_message_latency_seconds",
			Help:    "Time spent executing one message, by message type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"message_type"}),
		BlockWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dex_core_order_lock_spin_total",
			Help: "Times a worker spun on BlockUntilPrevFillFinished.",
		}),
	}
	reg.MustRegister(m.Processed, m.Errors, m.Latency, m.BlockWaits)
	return m
}
