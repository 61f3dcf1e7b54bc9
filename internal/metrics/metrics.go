// Package metrics records ranking engine activity as Prometheus metrics. The
// CLI is short-lived, so metrics are written to a node-exporter textfile
// rather than served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/boards/internal/ranking"
)

const namespace = "boards"

var _ ranking.Recorder = (*Recorder)(nil)

// Recorder implements ranking.Recorder on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
	shifted    *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
}

// New returns a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "operations_total",
			Help:      "Ranking operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "retries_total",
			Help:      "Attempts re-run after a transient storage failure.",
		}, []string{"op"}),
		shifted: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "shifted_tasks",
			Help:      "Sibling tasks renumbered per successful operation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ranking",
			Name:      "operation_duration_seconds",
			Help:      "Wall time per operation including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	r.registry.MustRegister(r.operations, r.retries, r.shifted, r.duration)
	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveOperation counts the operation and, when it succeeded, records how
// many siblings it renumbered.
func (r *Recorder) ObserveOperation(op, outcome string, shifted int, elapsed time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if outcome == "ok" {
		r.shifted.WithLabelValues(op).Observe(float64(shifted))
	}
}

func (r *Recorder) ObserveRetry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// WriteTextfile writes the current values in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
