// Package passthrough forwards client requests to operator-registered
// upstream targets. It turns endpoint definitions into routes, transforms
// each inbound request (headers, query, body, control fields), forwards it
// through a shared pooled client and relays the response, buffered or
// streamed, while reporting telemetry through hooks.
package passthrough

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/passthrough/pkg/adapters"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/streaming"
	"mercator-hq/passthrough/pkg/telemetry/hooks"
	"mercator-hq/passthrough/pkg/telemetry/tracing"
)

// Authenticator wraps handlers with the authentication check.
// *auth.Guard implements it.
type Authenticator interface {
	Handle(next http.Handler) http.Handler
}

// Engine holds the collaborators shared by every pass-through route.
type Engine struct {
	forwarder     *Forwarder
	resolver      SecretResolver
	adapters      *adapters.Registry
	hooks         *hooks.Dispatcher
	relay         streaming.ChunkRelay
	guard         Authenticator
	controlFields ControlFields
	premiumUser   bool
	maxBody       int64
	maxCapture    int
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the pooled upstream client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.forwarder.client = c }
}

// WithTracer records a span for every upstream call.
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.forwarder.tracer = t }
}

// WithSecretResolver resolves secret references in configured headers.
func WithSecretResolver(r SecretResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithAdapters sets the registry consulted for adapter targets.
func WithAdapters(r *adapters.Registry) Option {
	return func(e *Engine) { e.adapters = r }
}

// WithHooks sets the telemetry dispatcher.
func WithHooks(d *hooks.Dispatcher) Option {
	return func(e *Engine) { e.hooks = d }
}

// WithChunkRelay replaces the streaming relay.
func WithChunkRelay(r streaming.ChunkRelay) Option {
	return func(e *Engine) { e.relay = r }
}

// WithAuthenticator sets the guard wrapped around routes declared with auth.
func WithAuthenticator(a Authenticator) Option {
	return func(e *Engine) { e.guard = a }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine from the passthrough configuration.
func NewEngine(cfg config.PassthroughConfig, opts ...Option) *Engine {
	e := &Engine{
		forwarder:     NewForwarder(NewHTTPClient(cfg), nil),
		adapters:      adapters.NewRegistry(),
		relay:         streaming.DefaultRelay{},
		controlFields: NewControlFields(cfg.ControlFields...),
		premiumUser:   cfg.PremiumUser,
		maxBody:       cfg.MaxRequestBodySize,
		maxCapture:    cfg.MaxCapturedBytes,
		logger:        slog.Default().With("component", "passthrough"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks == nil {
		e.hooks = hooks.NewDispatcher(nil, 0)
	}
	return e
}

// Hooks returns the dispatcher so callers can wait for in-flight hooks.
func (e *Engine) Hooks() *hooks.Dispatcher {
	return e.hooks
}
