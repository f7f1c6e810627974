// Package metrics exposes Prometheus instrumentation for cascade runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "connectome"

// Outcome labels for processed neurons.
const (
	OutcomeWritten = "written"
	OutcomeSkipped = "skipped"
	OutcomeLeaf    = "leaf"
	OutcomeError   = "error"
)

// Cascade holds the crawler's collectors.
type Cascade struct {
	Neurons       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	LayerSize     prometheus.Histogram
}

// NewCascade registers the crawler collectors on reg. A nil reg creates unregistered collectors.
func NewCascade(reg prometheus.Registerer) *Cascade {
	factory := promauto.With(reg)
	return &Cascade{
		Neurons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "neurons_total",
			Help:      "Neurons handled by the cascade crawler by outcome",
		}, []string{"outcome"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "query_duration_seconds",
			Help:      "Latency of downstream partner queries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "runs_total",
			Help:      "Completed cascade runs by status",
		}, []string{"status"}),
		LayerSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "layer_size",
			Help:      "Number of neurons in each expanded layer",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

// Neuron counts one neuron with the given outcome. Safe on a nil receiver.
func (c *Cascade) Neuron(outcome string) {
	if c == nil {
		return
	}
	c.Neurons.WithLabelValues(outcome).Inc()
}

// ObserveQuery records a partner query duration.
func (c *Cascade) ObserveQuery(start time.Time, err error) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(status(err)).Observe(time.Since(start).Seconds())
}

// Run counts a finished run.
func (c *Cascade) Run(err error) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status(err)).Inc()
}

// Layer records the size of an expanded layer.
func (c *Cascade) Layer(size int) {
	if c == nil {
		return
	}
	c.LayerSize.Observe(float64(size))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
