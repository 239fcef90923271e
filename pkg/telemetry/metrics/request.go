package metrics

import (
	"time"

	"mercator-hq/passthrough/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks forwarded calls.
//
// Metrics:
//   - <ns>_<sub>_requests_total: calls by endpoint, method, status code
//   - <ns>_<sub>_request_duration_seconds: call duration histogram
//   - <ns>_<sub>_tokens_total: tokens reported by upstream responses
//   - <ns>_<sub>_response_size_bytes: relayed response size
//   - <ns>_<sub>_streams_total: streamed relays by outcome
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	responseSize    *prometheus.HistogramVec
	streamsTotal    *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of pass-through calls",
			},
			[]string{"endpoint", "method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of pass-through calls in seconds, including the relay",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"endpoint", "method"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Tokens reported in upstream responses",
			},
			[]string{"endpoint", "model", "type"},
		),

		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "response_size_bytes",
				Help:      "Size of captured upstream responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B to 4MB
			},
			[]string{"endpoint"},
		),

		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_total",
				Help:      "Streamed relays by outcome",
			},
			[]string{"endpoint", "outcome"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.tokensTotal,
		rm.responseSize,
		rm.streamsTotal,
	)

	return rm
}

// RecordRequest counts a call and observes its duration.
func (rm *RequestMetrics) RecordRequest(endpoint, method, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(endpoint, method, status).Inc()
	rm.requestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordTokens adds prompt and completion token counts. Zero counts are
// skipped.
func (rm *RequestMetrics) RecordTokens(endpoint, model string, promptTokens, completionTokens int64) {
	if promptTokens > 0 {
		rm.tokensTotal.WithLabelValues(endpoint, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		rm.tokensTotal.WithLabelValues(endpoint, model, "completion").Add(float64(completionTokens))
	}
}

// RecordSize observes a response size.
func (rm *RequestMetrics) RecordSize(endpoint string, sizeBytes int) {
	if sizeBytes > 0 {
		rm.responseSize.WithLabelValues(endpoint).Observe(float64(sizeBytes))
	}
}

// RecordStream counts a streamed relay. outcome is "completed" or "failed".
func (rm *RequestMetrics) RecordStream(endpoint, outcome string) {
	rm.streamsTotal.WithLabelValues(endpoint, outcome).Inc()
}
