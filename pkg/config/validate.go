package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All errors are collected and returned together.
//
// Endpoint definitions are not validated here: a bad definition aborts only
// its own route at install time.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validatePassthrough(&cfg.Passthrough)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateCallLog(&cfg.CallLog)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "proxy.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_timeout", Message: "read timeout must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.write_timeout", Message: "write timeout must not be negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.idle_timeout", Message: "idle timeout must not be negative"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "proxy.max_header_bytes", Message: "max header bytes must be between 0 and 10MB"})
	}

	return errs
}

func validatePassthrough(cfg *PassthroughConfig) []FieldError {
	var errs []FieldError

	if cfg.UpstreamTimeout <= 0 {
		errs = append(errs, FieldError{Field: "passthrough.upstream_timeout", Message: "upstream timeout must be positive"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: "passthrough.max_idle_conns", Message: "must not be negative"})
	}
	if cfg.MaxIdleConnsPerHost < 0 {
		errs = append(errs, FieldError{Field: "passthrough.max_idle_conns_per_host", Message: "must not be negative"})
	}
	if cfg.MaxRequestBodySize <= 0 {
		errs = append(errs, FieldError{Field: "passthrough.max_request_body_size", Message: "must be positive"})
	}
	for i, name := range cfg.ControlFields {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("passthrough.control_fields[%d]", i),
				Message: "control field name must not be empty",
			})
		}
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "file":
		if cfg.File.Path == "" {
			errs = append(errs, FieldError{Field: "store.file.path", Message: "path is required for the file backend"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "path is required for the sqlite backend"})
		}
	case "redis":
		if cfg.Redis.URL == "" {
			errs = append(errs, FieldError{Field: "store.redis.url", Message: "url is required for the redis backend"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q (expected memory, file, sqlite or redis)", cfg.Backend),
		})
	}
	if cfg.Field == "" {
		errs = append(errs, FieldError{Field: "store.field", Message: "field name is required"})
	}

	return errs
}

func validateCallLog(cfg *CallLogConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "call_log.path", Message: "path is required"})
	}
	if cfg.BufferSize <= 0 {
		errs = append(errs, FieldError{Field: "call_log.buffer_size", Message: "buffer size must be positive"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "call_log.retention_days", Message: "retention must not be negative"})
	}
	if cfg.RetentionDays > 0 {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "call_log.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("invalid level %q", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("invalid format %q", cfg.Logging.Format)})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
			}
		default:
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler)})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "security.tls", Message: "cert_file and key_file are required when TLS is enabled"})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{Field: "security.tls.min_version", Message: "min version must be 1.2 or 1.3"})
		}
	}

	for i, p := range cfg.Secrets.Providers {
		field := fmt.Sprintf("security.secrets.providers[%d]", i)
		switch p.Type {
		case "env":
		case "file":
			if p.Path == "" {
				errs = append(errs, FieldError{Field: field + ".path", Message: "path is required for file provider"})
			}
		case "vault":
			if p.IsEnabled() && p.Address == "" {
				errs = append(errs, FieldError{Field: field + ".address", Message: "address is required for vault provider"})
			}
		default:
			errs = append(errs, FieldError{Field: field + ".type", Message: fmt.Sprintf("unknown provider type %q", p.Type)})
		}
	}

	if cfg.Authentication.Enabled {
		if len(cfg.Authentication.Keys) == 0 {
			errs = append(errs, FieldError{Field: "security.authentication.keys", Message: "at least one key is required when authentication is enabled"})
		}
		for i, k := range cfg.Authentication.Keys {
			if k.Key == "" {
				errs = append(errs, FieldError{Field: fmt.Sprintf("security.authentication.keys[%d].key", i), Message: "key must not be empty"})
			}
		}
		for i, s := range cfg.Authentication.Sources {
			if s.Type != "header" && s.Type != "query" {
				errs = append(errs, FieldError{Field: fmt.Sprintf("security.authentication.sources[%d].type", i), Message: "type must be header or query"})
			}
			if s.Name == "" {
				errs = append(errs, FieldError{Field: fmt.Sprintf("security.authentication.sources[%d].name", i), Message: "name is required"})
			}
		}
	}

	return errs
}
