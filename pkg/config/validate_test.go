package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:      "empty listen address",
			modify:    func(c *Config) { c.Proxy.ListenAddress = "" },
			wantField: "proxy.listen_address",
		},
		{
			name:      "non-positive upstream timeout",
			modify:    func(c *Config) { c.Passthrough.UpstreamTimeout = -1 },
			wantField: "passthrough.upstream_timeout",
		},
		{
			name:      "blank control field",
			modify:    func(c *Config) { c.Passthrough.ControlFields = []string{"ok", " "} },
			wantField: "passthrough.control_fields[1]",
		},
		{
			name:      "redis without url",
			modify:    func(c *Config) { c.Store.Backend = "redis" },
			wantField: "store.redis.url",
		},
		{
			name: "bad prune schedule",
			modify: func(c *Config) {
				c.CallLog.Enabled = true
				c.CallLog.PruneSchedule = "every day"
			},
			wantField: "call_log.prune_schedule",
		},
		{
			name:      "unknown log level",
			modify:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name: "tracing ratio out of range",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.SampleRatio = 2
			},
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:      "tls without files",
			modify:    func(c *Config) { c.Security.TLS.Enabled = true },
			wantField: "security.tls",
		},
		{
			name: "vault without address",
			modify: func(c *Config) {
				c.Security.Secrets.Providers = []SecretProviderConfig{{Type: "vault"}}
			},
			wantField: "security.secrets.providers[0].address",
		},
		{
			name:      "auth without keys",
			modify:    func(c *Config) { c.Security.Authentication.Enabled = true },
			wantField: "security.authentication.keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("Error() = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}}
	if got := multi.Error(); !strings.Contains(got, "2 errors") || !strings.Contains(got, "b: y") {
		t.Errorf("Error() = %q", got)
	}
}
