package secrets

import (
	"fmt"

	"mercator-hq/passthrough/pkg/config"
)

// NewManagerFromConfig builds the provider chain described by cfg. Disabled
// providers are skipped; unknown provider types are an error.
func NewManagerFromConfig(cfg config.SecretsConfig) (*Manager, error) {
	var providers []SecretProvider
	for i, pc := range cfg.Providers {
		if !pc.IsEnabled() {
			continue
		}
		switch pc.Type {
		case "env":
			providers = append(providers, NewEnvProvider(pc.Prefix))
		case "file":
			p, err := NewFileProvider(pc.Path, pc.Watch)
			if err != nil {
				closeAll(providers)
				return nil, fmt.Errorf("secrets provider %d: %w", i, err)
			}
			providers = append(providers, p)
		case "vault":
			p, err := NewVaultProvider(VaultConfig{
				Address: pc.Address,
				Token:   pc.Token,
				Mount:   pc.Mount,
				Path:    pc.VaultPath,
			})
			if err != nil {
				closeAll(providers)
				return nil, fmt.Errorf("secrets provider %d: %w", i, err)
			}
			providers = append(providers, p)
		default:
			closeAll(providers)
			return nil, fmt.Errorf("secrets provider %d: unknown type %q", i, pc.Type)
		}
	}

	return NewManager(providers, CacheConfig{
		Enabled: cfg.Cache.Enabled,
		TTL:     cfg.Cache.TTL,
		MaxSize: cfg.Cache.MaxSize,
	}), nil
}

func closeAll(providers []SecretProvider) {
	for _, p := range providers {
		if c, ok := p.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}
