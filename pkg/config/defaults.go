package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress     = "127.0.0.1:4000"
	DefaultReadTimeout       = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB
	DefaultManagementTimeout = 30 * time.Second
	DefaultCORSMaxAge        = 3600

	// Passthrough defaults
	DefaultUpstreamTimeout     = 600 * time.Second
	DefaultMaxIdleConns        = 200
	DefaultMaxIdleConnsPerHost = 50
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxRequestBodySize  = int64(32 << 20)
	DefaultMaxCapturedBytes    = 1 << 20

	// Store defaults
	DefaultStoreBackend          = "memory"
	DefaultStoreField            = "pass_through_endpoints"
	DefaultStoreFilePath         = "./data/passthrough-store.yaml"
	DefaultStoreDebounceInterval = 200 * time.Millisecond
	DefaultStoreSQLitePath       = "./data/passthrough-store.db"
	DefaultStoreBusyTimeout      = 5 * time.Second
	DefaultStoreRedisKeyPrefix   = "passthrough:"
	DefaultStoreRedisPoolSize    = 10
	DefaultStoreRedisDialTimeout = 5 * time.Second

	// Call log defaults
	DefaultCallLogPath          = "./data/passthrough-calls.db"
	DefaultCallLogBufferSize    = 1000
	DefaultCallLogWriteTimeout  = 100 * time.Millisecond
	DefaultCallLogMaxBodyBytes  = 65536
	DefaultCallLogRetentionDays = 30
	DefaultCallLogPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 5
	DefaultLogFileMaxAgeDays = 28
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "passthrough"
	DefaultMetricsSubsystem  = "gateway"
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultTracingService    = "passthrough-gateway"
	DefaultTracingTimeout    = 10 * time.Second
	DefaultLivenessPath      = "/health"
	DefaultReadinessPath     = "/ready"
	DefaultVersionPath       = "/version"
	DefaultHealthTimeout     = 5 * time.Second

	// Security defaults
	DefaultTLSMinVersion   = "1.2"
	DefaultVaultMount      = "secret"
	DefaultSecretsCacheTTL = 5 * time.Minute
	DefaultSecretsCacheMax = 1000
)

// DefaultRequestDurationBuckets covers both quick JSON calls and long
// streamed completions.
var DefaultRequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600}

// Default returns a configuration with every default applied, including the
// boolean defaults that cannot be inferred from zero values. LoadConfig
// decodes YAML on top of it so omitted keys keep their defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Insecure = true
	cfg.Store.SQLite.WALMode = true
	cfg.Security.Secrets.Cache.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyProxyDefaults(cfg)
	applyPassthroughDefaults(cfg)
	applyStoreDefaults(cfg)
	applyCallLogDefaults(cfg)
	applyTelemetryDefaults(cfg)
	applySecurityDefaults(cfg)
}

func applyProxyDefaults(cfg *Config) {
	p := &cfg.Proxy
	if p.ListenAddress == "" {
		p.ListenAddress = DefaultListenAddress
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = DefaultReadTimeout
	}
	// WriteTimeout stays zero: streamed responses outlive any fixed bound.
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.MaxHeaderBytes == 0 {
		p.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if p.ManagementTimeout == 0 {
		p.ManagementTimeout = DefaultManagementTimeout
	}

	cors := &p.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID", "X-Passthrough-Call-Id"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyPassthroughDefaults(cfg *Config) {
	p := &cfg.Passthrough
	if p.UpstreamTimeout == 0 {
		p.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if p.MaxIdleConns == 0 {
		p.MaxIdleConns = DefaultMaxIdleConns
	}
	if p.MaxIdleConnsPerHost == 0 {
		p.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if p.IdleConnTimeout == 0 {
		p.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if p.MaxRequestBodySize == 0 {
		p.MaxRequestBodySize = DefaultMaxRequestBodySize
	}
	if p.MaxCapturedBytes == 0 {
		p.MaxCapturedBytes = DefaultMaxCapturedBytes
	}
}

func applyStoreDefaults(cfg *Config) {
	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = DefaultStoreBackend
	}
	if s.Field == "" {
		s.Field = DefaultStoreField
	}
	if s.File.Path == "" {
		s.File.Path = DefaultStoreFilePath
	}
	if s.File.DebounceInterval == 0 {
		s.File.DebounceInterval = DefaultStoreDebounceInterval
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultStoreSQLitePath
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultStoreBusyTimeout
	}
	if s.Redis.KeyPrefix == "" {
		s.Redis.KeyPrefix = DefaultStoreRedisKeyPrefix
	}
	if s.Redis.PoolSize == 0 {
		s.Redis.PoolSize = DefaultStoreRedisPoolSize
	}
	if s.Redis.DialTimeout == 0 {
		s.Redis.DialTimeout = DefaultStoreRedisDialTimeout
	}
}

func applyCallLogDefaults(cfg *Config) {
	c := &cfg.CallLog
	if c.Path == "" {
		c.Path = DefaultCallLogPath
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultCallLogBufferSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultCallLogWriteTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultCallLogMaxBodyBytes
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = DefaultCallLogRetentionDays
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = DefaultCallLogPruneSchedule
	}
}

func applyTelemetryDefaults(cfg *Config) {
	l := &cfg.Telemetry.Logging
	if l.Level == "" {
		l.Level = DefaultLoggingLevel
	}
	if l.Format == "" {
		l.Format = DefaultLoggingFormat
	}
	if l.File.MaxSizeMB == 0 {
		l.File.MaxSizeMB = DefaultLogFileMaxSizeMB
	}
	if l.File.MaxBackups == 0 {
		l.File.MaxBackups = DefaultLogFileMaxBackups
	}
	if l.File.MaxAgeDays == 0 {
		l.File.MaxAgeDays = DefaultLogFileMaxAgeDays
	}

	m := &cfg.Telemetry.Metrics
	if m.Path == "" {
		m.Path = DefaultMetricsPath
	}
	if m.Namespace == "" {
		m.Namespace = DefaultMetricsNamespace
	}
	if m.Subsystem == "" {
		m.Subsystem = DefaultMetricsSubsystem
	}
	if len(m.RequestDurationBuckets) == 0 {
		m.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}

	t := &cfg.Telemetry.Tracing
	if t.Sampler == "" {
		t.Sampler = DefaultTracingSampler
	}
	if t.SampleRatio == 0 {
		t.SampleRatio = DefaultTracingRatio
	}
	if t.Endpoint == "" {
		t.Endpoint = DefaultTracingEndpoint
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultTracingService
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTracingTimeout
	}

	h := &cfg.Telemetry.Health
	if h.LivenessPath == "" {
		h.LivenessPath = DefaultLivenessPath
	}
	if h.ReadinessPath == "" {
		h.ReadinessPath = DefaultReadinessPath
	}
	if h.VersionPath == "" {
		h.VersionPath = DefaultVersionPath
	}
	if h.CheckTimeout == 0 {
		h.CheckTimeout = DefaultHealthTimeout
	}
}

func applySecurityDefaults(cfg *Config) {
	s := &cfg.Security
	if s.TLS.MinVersion == "" {
		s.TLS.MinVersion = DefaultTLSMinVersion
	}
	if len(s.Secrets.Providers) == 0 {
		s.Secrets.Providers = []SecretProviderConfig{{Type: "env"}}
	}
	for i := range s.Secrets.Providers {
		p := &s.Secrets.Providers[i]
		if p.Type == "vault" && p.Mount == "" {
			p.Mount = DefaultVaultMount
		}
	}
	if s.Secrets.Cache.TTL == 0 {
		s.Secrets.Cache.TTL = DefaultSecretsCacheTTL
	}
	if s.Secrets.Cache.MaxSize == 0 {
		s.Secrets.Cache.MaxSize = DefaultSecretsCacheMax
	}
	if len(s.Authentication.Sources) == 0 {
		s.Authentication.Sources = []APIKeySource{
			{Type: "header", Name: "Authorization", Scheme: "Bearer"},
			{Type: "header", Name: "x-api-key"},
		}
	}
}
