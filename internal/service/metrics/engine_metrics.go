package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "regimelab",
			Subsystem: "engine",
			Name:      "endpoint_latency_seconds",
			Help:      "Latency of engine endpoints",
			Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regimelab",
			Subsystem: "engine",
			Name:      "endpoint_errors_total",
			Help:      "Errors by engine endpoint and code",
		},
		[]string{"endpoint", "code"},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "regimelab",
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Jobs currently executing on this instance",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, JobsInFlight)
	})
}

// ObserveEndpoint records the latency of one call and, when code is not
// empty, an error.
func ObserveEndpoint(endpoint string, start time.Time, code string) {
	EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if code != "" {
		EndpointErrors.WithLabelValues(endpoint, code).Inc()
	}
}
