// Package metrics exports recorder activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/simrec/internal/recorder"
)

const namespace = "simrec"

// Dispatch status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Observer implements recorder.Observer on a set of Prometheus collectors.
type Observer struct {
	accepted  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	dispatch  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	batchSize *prometheus.GaugeVec
}

var _ recorder.Observer = (*Observer)(nil)

// New registers the recorder collectors on reg.
func New(reg prometheus.Registerer) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		// Labels: title
		accepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Records accepted into the dispatch buffer",
		}, []string{"title"}),

		// Labels: title, code (recorder error code)
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records rejected at commit",
		}, []string{"title", "code"}),

		// Labels: backend, status (ok, error)
		dispatch: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Batches handed to a backend",
		}, []string{"backend", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time a backend spent in Notify",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"backend"}),

		batchSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_batch_size",
			Help:      "Size of the last batch handed to a backend",
		}, []string{"backend"}),
	}
}

// RecordAccepted implements recorder.Observer.
func (o *Observer) RecordAccepted(title string) {
	o.accepted.WithLabelValues(title).Inc()
}

// RecordRejected implements recorder.Observer.
func (o *Observer) RecordRejected(title string, code recorder.ErrorCode) {
	o.rejected.WithLabelValues(title, string(code)).Inc()
}

// Dispatched implements recorder.Observer.
func (o *Observer) Dispatched(backend string, size int, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	o.dispatch.WithLabelValues(backend, status).Inc()
	o.duration.WithLabelValues(backend).Observe(elapsed.Seconds())
	o.batchSize.WithLabelValues(backend).Set(float64(size))
}
