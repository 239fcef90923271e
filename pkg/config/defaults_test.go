package config

import "testing"

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if cfg.Proxy.ListenAddress != first.Proxy.ListenAddress {
		t.Error("ListenAddress changed on second pass")
	}
	if len(cfg.Security.Secrets.Providers) != 1 || cfg.Security.Secrets.Providers[0].Type != "env" {
		t.Errorf("unexpected default providers %+v", cfg.Security.Secrets.Providers)
	}
	if cfg.Proxy.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0 for streaming", cfg.Proxy.WriteTimeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Passthrough.MaxIdleConns = 7
	cfg.Store.Backend = "file"
	ApplyDefaults(cfg)

	if cfg.Passthrough.MaxIdleConns != 7 {
		t.Errorf("MaxIdleConns = %d", cfg.Passthrough.MaxIdleConns)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("Backend = %q", cfg.Store.Backend)
	}
}

func TestEnabledFlags(t *testing.T) {
	off := false
	if !(SecretProviderConfig{}).IsEnabled() {
		t.Error("provider should default to enabled")
	}
	if (SecretProviderConfig{Enabled: &off}).IsEnabled() {
		t.Error("explicitly disabled provider reported enabled")
	}
	if !(APIKeyConfig{}).IsEnabled() {
		t.Error("key should default to enabled")
	}
}

func TestSingleton(t *testing.T) {
	cfg := Default()
	SetConfig(cfg)
	defer SetConfig(nil)

	if GetConfig() != cfg {
		t.Error("GetConfig did not return the stored config")
	}
	if MustGetConfig() != cfg {
		t.Error("MustGetConfig did not return the stored config")
	}
}
