// Package metrics exposes Prometheus metrics for verification runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrdadan/clinicprobe/internal/journey"
)

const namespace = "clinicprobe"

// Recorder counts runs, steps and screenshots. It implements
// journey.Observer and can be shared across runs.
type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	steps       *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec
	screenshots prometheus.Counter
	active      prometheus.Gauge
}

// NewRecorder registers the metrics on a fresh registry, together with the
// Go and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Verification runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a verification run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Scenario steps by scenario, kind and outcome.",
		}, []string{"scenario", "kind", "outcome"}),
		stepLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Latency of scenario steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		screenshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Screenshots written.",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_in_progress",
			Help:      "1 while a step is executing.",
		}),
	}
}

func (r *Recorder) StepStarted(journey.Progress) {
	r.active.Set(1)
}

func (r *Recorder) StepFinished(p journey.Progress) {
	r.active.Set(0)
	outcome := "passed"
	if p.Err != nil {
		outcome = "failed"
	}
	kind := string(p.Step.Kind)
	r.steps.WithLabelValues(p.Scenario, kind, outcome).Inc()
	r.stepLatency.WithLabelValues(kind).Observe(p.Elapsed.Seconds())
	if p.Artifact != "" {
		r.screenshots.Inc()
	}
}

// RunFinished records the outcome of a run.
func (r *Recorder) RunFinished(report *journey.Report) {
	outcome := "passed"
	if !report.OK() {
		outcome = "failed"
	}
	r.runs.WithLabelValues(outcome).Inc()
	if !report.FinishedAt.IsZero() {
		r.runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
