// Package metrics exposes transition and side-effect counters to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procurement"

// Recorder implements the workflow engine and dispatcher observers
type Recorder struct {
	registry        *prometheus.Registry
	transitions     *prometheus.CounterVec
	lockWait        prometheus.Histogram
	effectFailures  *prometheus.CounterVec
	sweepsProcessed *prometheus.CounterVec
}

// NewRecorder registers the collectors on a fresh registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Status transition requests by outcome.",
		}, []string{"kind", "from", "to", "outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the document update lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Post-transition handler failures.",
		}, []string{"effect", "critical"}),
		sweepsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_documents_total",
			Help:      "Documents acted on by scheduled sweeps.",
		}, []string{"sweep", "action"}),
	}

	r.registry.MustRegister(
		r.transitions,
		r.lockWait,
		r.effectFailures,
		r.sweepsProcessed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// TransitionObserved counts one transition request
func (r *Recorder) TransitionObserved(kind, from, to, outcome string) {
	r.transitions.WithLabelValues(kind, from, to, outcome).Inc()
}

// LockWaited records how long a request waited for the lock
func (r *Recorder) LockWaited(d time.Duration) {
	r.lockWait.Observe(d.Seconds())
}

// HandlerFailed counts one failed post-transition handler
func (r *Recorder) HandlerFailed(name string, critical bool) {
	label := "false"
	if critical {
		label = "true"
	}
	r.effectFailures.WithLabelValues(name, label).Inc()
}

// SweepProcessed adds n documents to a sweep action counter
func (r *Recorder) SweepProcessed(sweep, action string, n int) {
	if n <= 0 {
		return
	}
	r.sweepsProcessed.WithLabelValues(sweep, action).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
