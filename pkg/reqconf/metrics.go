package reqconf

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// PrometheusMetrics exports call metrics. Register its Interceptor globally
// (typically under AllEndpoints) so it observes the final outcome of every
// call. Calls abandoned before the post-call chain leave the in-flight gauge
// but are not counted. It is safe for concurrent use.
type PrometheusMetrics struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec

	started sync.Map // *Config -> time.Time
}

// NewPrometheusMetrics creates metrics on the default registerer.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWithRegistry creates metrics using the supplied registerer.
func NewPrometheusMetricsWithRegistry(registry prometheus.Registerer) *PrometheusMetrics {
	return &PrometheusMetrics{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqconf_calls_total",
				Help: "Total number of executed calls by endpoint and outcome.",
			},
			[]string{"endpoint", "method", "outcome"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqconf_call_duration_seconds",
				Help:    "Duration of executed calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method", "status_code"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqconf_calls_in_flight",
				Help: "Number of calls admitted and not yet settled.",
			},
			[]string{"endpoint"},
		),
	}
}

// Interceptor returns the pre/post pair recording the metrics.
func (m *PrometheusMetrics) Interceptor() Interceptor {
	return Interceptor{
		PreCall: func(ctx context.Context, cfg *Config) error {
			m.started.Store(cfg, time.Now())
			m.callsInFlight.WithLabelValues(cfg.EndpointKey()).Inc()

			return nil
		},
		PostCall: func(ctx context.Context, resp *Response, err error, cfg *Config) (*Response, error) {
			outcome := OutcomeSuccess
			if err != nil {
				outcome = OutcomeError
			}

			statusCode := "0"
			if resp != nil {
				statusCode = strconv.Itoa(resp.StatusCode)
			}

			m.callsTotal.WithLabelValues(cfg.EndpointKey(), cfg.Method(), outcome).Inc()

			if startTime, ok := m.started.LoadAndDelete(cfg); ok {
				m.callsInFlight.WithLabelValues(cfg.EndpointKey()).Dec()
				m.callDuration.WithLabelValues(cfg.EndpointKey(), cfg.Method(), statusCode).
					Observe(time.Since(startTime.(time.Time)).Seconds())
			}

			return nil, nil
		},
		Abandon: func(ctx context.Context, cfg *Config, err error) {
			if _, ok := m.started.LoadAndDelete(cfg); ok {
				m.callsInFlight.WithLabelValues(cfg.EndpointKey()).Dec()
			}
		},
	}
}
