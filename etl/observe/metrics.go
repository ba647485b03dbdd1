package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's Prometheus instruments, grounded on the
// teacher repo's graph/metrics.go PrometheusMetrics design (gauges/counters
// built via promauto against a caller-supplied registerer).
type Metrics struct {
	ActiveWorkers *prometheus.GaugeVec
	QueueDepth    *prometheus.GaugeVec
	ItemsLoaded   *prometheus.CounterVec
	NodeErrors    *prometheus.CounterVec
}

// NewMetrics registers the engine's instruments against reg. Passing
// prometheus.NewRegistry() (or any custom registerer) isolates the engine's
// metrics from the process default registry; callers that don't care can
// pass prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveWorkers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "etl",
			Name:      "active_node_workers",
			Help:      "Number of node workers currently running, by segment.",
		}, []string{"segment"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "etl",
			Name:      "queue_depth_batches",
			Help:      "Number of batches currently queued on a connector.",
		}, []string{"from_node", "to_node"}),
		ItemsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "items_loaded_total",
			Help:      "Items successfully passed to Loader.Load, by loader node.",
		}, []string{"node"}),
		NodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "node_errors_total",
			Help:      "Node worker failures, by node and lifecycle action.",
		}, []string{"node", "action"}),
	}
}
