package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "RegimeLab/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	collectors     *httpCollectors
	collectorsOnce sync.Once
)

func httpMetrics() *httpCollectors {
	collectorsOnce.Do(func() {
		c := &httpCollectors{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "regimelab",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route template and status",
			}, []string{"route", "method", "status"}),
			// engine runs take seconds, so the buckets go up to two minutes
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "regimelab",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"route", "method"}),
			size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "regimelab",
				Name:      "http_response_size_bytes",
				Help:      "HTTP response body size",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
			}, []string{"route"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "regimelab",
				Name:      "http_in_flight_requests",
				Help:      "Requests being served",
			}),
		}
		prometheus.MustRegister(c.requests, c.duration, c.size, c.inFlight)
		collectors = c
	})
	return collectors
}

// Metrics records request metrics labelled by the Echo route template, so
// job ids never become label values. Requests slower than slow are logged.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := httpMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			// resolve the error here so the status below is the one sent
			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := c.Response().Status
			took := time.Since(start)

			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(route, method).Observe(took.Seconds())
			m.size.WithLabelValues(route).Observe(float64(c.Response().Size))

			if l != nil && slow > 0 && took >= slow {
				l.Warn("slow request",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", status),
					applogger.Duration("took", took))
			}
			return nil
		}
	}
}
