package config

import (
	"time"

	"mercator-hq/passthrough/pkg/endpoints"
)

// Config is the root configuration structure for the pass-through gateway.
// It contains all configuration sections for the HTTP server, the forwarding
// engine, the endpoint store, secrets, telemetry, and security settings.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, and connection limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Passthrough contains forwarding engine configuration and statically
	// configured endpoint definitions.
	Passthrough PassthroughConfig `yaml:"passthrough"`

	// Store selects and configures the persistence backend that holds the
	// managed endpoint definitions.
	Store StoreConfig `yaml:"store"`

	// CallLog contains configuration for the success/failure call log.
	CallLog CallLogConfig `yaml:"call_log"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains security-related configuration including TLS,
	// secret providers, and API key authentication.
	Security SecurityConfig `yaml:"security"`
}

// ProxyConfig contains configuration for the HTTP server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the gateway to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:4000", "0.0.0.0:4000").
	// Default: "127.0.0.1:4000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero value means no timeout.
	// Default: 60s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming relays can run for minutes, so this is disabled
	// unless set explicitly.
	// Default: 0 (no timeout)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ManagementTimeout bounds management API requests. Proxied routes are
	// never wrapped with a server-side timeout.
	// Default: 30s
	ManagementTimeout time.Duration `yaml:"management_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID", "X-Passthrough-Call-Id"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed in CORS requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// PassthroughConfig contains configuration for the forwarding engine.
type PassthroughConfig struct {
	// UpstreamTimeout is the overall timeout for a single upstream call,
	// including reading a streamed body.
	// Default: 600s
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	// MaxIdleConns is the maximum number of idle upstream connections.
	// Default: 200
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the maximum number of idle connections per upstream host.
	// Default: 50
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long an idle upstream connection stays pooled.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// MaxRequestBodySize caps the inbound body read for forwarding (bytes).
	// Default: 33554432 (32MB)
	MaxRequestBodySize int64 `yaml:"max_request_body_size"`

	// MaxCapturedBytes caps how much of a streamed response is retained for
	// telemetry. The client always receives the full stream.
	// Default: 1048576 (1MB)
	MaxCapturedBytes int `yaml:"max_captured_bytes"`

	// PremiumUser is the licence flag that permits auth on pass-through routes.
	// Default: false
	PremiumUser bool `yaml:"premium_user"`

	// ControlFields lists additional body fields treated as internal
	// control parameters and stripped before forwarding.
	ControlFields []string `yaml:"control_fields"`

	// Endpoints are statically configured definitions. They are installed
	// alongside the stored definitions but are not editable at runtime.
	Endpoints []endpoints.Definition `yaml:"endpoints"`
}

// StoreConfig selects the backend that persists managed endpoint definitions.
type StoreConfig struct {
	// Backend is the storage backend type.
	// Options: "memory", "file", "sqlite", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Field is the name of the list-typed field holding all definitions.
	// Default: "pass_through_endpoints"
	Field string `yaml:"field"`

	// File contains file backend configuration.
	File FileStoreConfig `yaml:"file"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteStoreConfig `yaml:"sqlite"`

	// Redis contains Redis backend configuration.
	Redis RedisStoreConfig `yaml:"redis"`
}

// FileStoreConfig configures the YAML file store.
type FileStoreConfig struct {
	// Path is the YAML document holding stored fields.
	// Default: "./data/passthrough-store.yaml"
	Path string `yaml:"path"`

	// Watch reloads routes when the file is edited externally.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	// Default: "./data/passthrough-store.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	// URL is the connection URL.
	// Example: "redis://localhost:6379/0"
	URL string `yaml:"url"`

	// KeyPrefix namespaces all keys written by the store.
	// Default: "passthrough:"
	KeyPrefix string `yaml:"key_prefix"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// CallLogConfig contains configuration for the call log sink.
type CallLogConfig struct {
	// Enabled controls whether success/failure payloads are persisted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	// Default: "./data/passthrough-calls.db"
	Path string `yaml:"path"`

	// BufferSize is the recorder queue capacity.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds how long the request path waits to enqueue.
	// Default: 100ms
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxBodyBytes truncates stored request/response bodies.
	// Default: 65536
	MaxBodyBytes int `yaml:"max_body_bytes"`

	// RetentionDays is how long call records are kept (0 = forever).
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron schedule for retention pruning.
	// Default: "0 3 * * *" (daily at 3am)
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactHeaders lists additional header names whose values are masked
	// in debug logs. Authorization-style headers are always masked.
	RedactHeaders []string `yaml:"redact_headers"`

	// File enables rotated file output in addition to stderr.
	File LogFileConfig `yaml:"file"`
}

// LogFileConfig configures rotated log files.
type LogFileConfig struct {
	// Path is the log file. Empty disables file output.
	Path string `yaml:"path"`

	// MaxSizeMB is the size at which the file is rotated.
	// Default: 100
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	// Default: 5
	MaxBackups int `yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	// Default: 28
	MaxAgeDays int `yaml:"max_age_days"`

	// Compress gzips rotated files.
	// Default: false
	Compress bool `yaml:"compress"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "passthrough"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "passthrough-gateway"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for span exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the path for the version information endpoint.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS configuration for the HTTP server.
	TLS TLSConfig `yaml:"tls"`

	// Secrets contains secret resolution configuration.
	Secrets SecretsConfig `yaml:"secrets"`

	// Authentication contains API key authentication configuration.
	Authentication AuthenticationConfig `yaml:"authentication"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled for the server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept.
	// Options: "1.2", "1.3"
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`
}

// SecretsConfig contains secret management configuration.
type SecretsConfig struct {
	// Providers is a list of secret providers, tried in order.
	// Default: a single "env" provider with no prefix.
	Providers []SecretProviderConfig `yaml:"providers"`

	// Cache contains secret caching configuration.
	Cache SecretsCacheConfig `yaml:"cache"`
}

// SecretProviderConfig contains configuration for a secret provider.
type SecretProviderConfig struct {
	// Type is the provider type.
	// Options: "env", "file", "vault"
	Type string `yaml:"type"`

	// Enabled controls whether this provider is enabled.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Prefix is the environment variable prefix (for "env" provider).
	Prefix string `yaml:"prefix,omitempty"`

	// Path is the base directory for file-based secrets (for "file" provider).
	Path string `yaml:"path,omitempty"`

	// Watch enables file watching for cache invalidation (for "file" provider).
	Watch bool `yaml:"watch,omitempty"`

	// Address is the Vault server address (for "vault" provider).
	Address string `yaml:"address,omitempty"`

	// Token is the Vault token (for "vault" provider).
	Token string `yaml:"token,omitempty"`

	// Mount is the KV v2 mount (for "vault" provider).
	// Default: "secret"
	Mount string `yaml:"mount,omitempty"`

	// VaultPath is the secret path under the mount (for "vault" provider).
	// Each key of the secret's data map is one secret name.
	VaultPath string `yaml:"vault_path,omitempty"`
}

// IsEnabled reports whether the provider is enabled. Providers are enabled
// unless explicitly disabled.
func (p SecretProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SecretsCacheConfig contains configuration for secret caching.
type SecretsCacheConfig struct {
	// Enabled controls whether secret caching is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is the time-to-live for cached secrets.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxSize is the maximum number of secrets to cache.
	// Default: 1000
	MaxSize int `yaml:"max_size"`
}

// AuthenticationConfig contains API key authentication configuration.
type AuthenticationConfig struct {
	// Enabled controls whether API key authentication guards the management
	// API and routes declared with auth.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sources defines where to extract API keys from (headers, query params).
	// Default: Authorization header with Bearer scheme, then x-api-key header.
	Sources []APIKeySource `yaml:"sources"`

	// Keys is the list of valid API keys.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeySource defines where to extract API keys from in HTTP requests.
type APIKeySource struct {
	// Type is the source type.
	// Options: "header", "query"
	Type string `yaml:"type"`

	// Name is the header name or query parameter name.
	Name string `yaml:"name"`

	// Scheme is the authentication scheme for header-based extraction.
	// Example: "Bearer"
	Scheme string `yaml:"scheme,omitempty"`
}

// APIKeyConfig contains configuration for a single API key and the
// identity it authenticates as.
type APIKeyConfig struct {
	Key       string `yaml:"key"`
	Alias     string `yaml:"alias,omitempty"`
	UserID    string `yaml:"user_id"`
	UserEmail string `yaml:"user_email,omitempty"`
	TeamID    string `yaml:"team_id,omitempty"`
	TeamAlias string `yaml:"team_alias,omitempty"`
	OrgID     string `yaml:"org_id,omitempty"`
	EndUserID string `yaml:"end_user_id,omitempty"`

	// Enabled controls whether this key is accepted.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the key is accepted.
func (k APIKeyConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}
