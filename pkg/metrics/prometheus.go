package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	seriesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	cacheTotal  *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimelab_engine_runs_total",
				Help: "Engine runs by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regimelab_engine_run_duration_seconds",
				Help:    "Wall time of engine runs",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		seriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimelab_engine_series_total",
				Help: "Synthetic series or Monte Carlo paths produced",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimelab_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimelab_response_cache_total",
				Help: "Response cache lookups",
			},
			[]string{"endpoint", "hit"},
		),
	}
}

// RecordRun records one finished run.
func (r *Recorder) RecordRun(kind, status string, seconds float64) {
	r.runsTotal.WithLabelValues(kind, status).Inc()
	r.runDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordSeries adds n generated series for kind.
func (r *Recorder) RecordSeries(kind string, n int) {
	if n > 0 {
		r.seriesTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordCacheHit(endpoint string, hit bool) {
	r.cacheTotal.WithLabelValues(endpoint, strconv.FormatBool(hit)).Inc()
}
