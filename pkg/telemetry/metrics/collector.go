package metrics

import (
	"strconv"
	"sync"
	"time"

	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/telemetry/hooks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// otherLabel replaces label values once the cardinality cap is reached.
const otherLabel = "other"

// Collector owns the Prometheus registry and every gateway metric.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics

	routesInstalled *prometheus.GaugeVec
	reloadsTotal    *prometheus.CounterVec
	hookFailures    *prometheus.CounterVec

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered with registry. A nil registry
// gets a fresh one carrying the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Upstream latencies range from fast lookups to long generations.
		cfg.RequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
	c.requestMetrics = NewRequestMetrics(cfg, registry)

	c.routesInstalled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "routes_installed",
			Help:      "Pass-through routes in the active route table",
		},
		[]string{"auth"},
	)
	c.reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "route_reloads_total",
			Help:      "Route table reloads by result",
		},
		[]string{"result"},
	)
	c.hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hook_failures_total",
			Help:      "Telemetry hook invocations that returned an error or panicked",
		},
		[]string{"hook"},
	)
	registry.MustRegister(c.routesInstalled, c.reloadsTotal, c.hookFailures)

	return c
}

// label returns value, or "other" once the label set would exceed the
// cardinality cap.
func (c *Collector) label(metric, value string) string {
	if c.cardinalityLimiter.Allow(metric + ":" + value) {
		return value
	}
	return otherLabel
}

// RecordRequest records a completed call.
func (c *Collector) RecordRequest(endpoint, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	endpoint = c.label("endpoint", endpoint)
	c.requestMetrics.RecordRequest(endpoint, method, strconv.Itoa(status), duration)
}

// RecordUsage records token usage reported by an upstream.
func (c *Collector) RecordUsage(endpoint, model string, usage hooks.Usage) {
	if !c.config.Enabled {
		return
	}
	if model == "" {
		model = "unknown"
	}
	endpoint = c.label("endpoint", endpoint)
	model = c.label("model", model)
	c.requestMetrics.RecordTokens(endpoint, model, usage.PromptTokens, usage.CompletionTokens)
}

// RecordResponseSize records the captured size of a relayed response.
func (c *Collector) RecordResponseSize(endpoint string, size int) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordSize(c.label("endpoint", endpoint), size)
}

// RecordStream records the outcome of a streamed relay.
func (c *Collector) RecordStream(endpoint string, completed bool) {
	if !c.config.Enabled {
		return
	}
	outcome := "completed"
	if !completed {
		outcome = "failed"
	}
	c.requestMetrics.RecordStream(c.label("endpoint", endpoint), outcome)
}

// SetRoutes updates the installed route gauges.
func (c *Collector) SetRoutes(total, authenticated int) {
	if !c.config.Enabled {
		return
	}
	c.routesInstalled.WithLabelValues("false").Set(float64(total - authenticated))
	c.routesInstalled.WithLabelValues("true").Set(float64(authenticated))
}

// RecordReload counts a route table reload by result.
func (c *Collector) RecordReload(err error) {
	if !c.config.Enabled {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.reloadsTotal.WithLabelValues(result).Inc()
}

// RecordHookFailure counts a failed telemetry hook. Its signature matches
// hooks.Dispatcher.OnError.
func (c *Collector) RecordHookFailure(kind string, _ error) {
	if !c.config.Enabled {
		return
	}
	c.hookFailures.WithLabelValues(kind).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label sets recorded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// distinct label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the
// cap.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
