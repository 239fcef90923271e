package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// VaultConfig configures a VaultProvider.
type VaultConfig struct {
	// Address of the Vault server, e.g. https://vault.internal:8200.
	Address string

	// Token used for every request.
	Token string

	// Mount is the KV v2 mount point.
	Mount string

	// Path of the secret under the mount. Each key of its data map is one
	// secret name.
	Path string
}

// VaultProvider reads secrets from a single HashiCorp Vault KV v2 secret.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
	path   string
}

// NewVaultProvider creates a provider for the secret at mount/path.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("vault secret path is required")
	}
	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}

	apiCfg := vaultapi.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("vault config: %w", apiCfg.Error)
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	apiCfg.MaxRetries = 0

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultProvider{
		client: client,
		mount:  mount,
		path:   strings.Trim(cfg.Path, "/"),
	}, nil
}

// GetSecret returns the value stored under key name.
func (p *VaultProvider) GetSecret(ctx context.Context, name string) (string, error) {
	data, err := p.read(ctx)
	if err != nil {
		return "", err
	}
	raw, ok := data[name]
	if !ok || raw == nil {
		return "", fmt.Errorf("vault %s/%s#%s: %w", p.mount, p.path, name, ErrSecretNotFound)
	}
	value, ok := raw.(string)
	if !ok {
		value = fmt.Sprint(raw)
	}
	return value, nil
}

// ListSecrets returns the keys of the secret, sorted.
func (p *VaultProvider) ListSecrets(ctx context.Context) ([]string, error) {
	data, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// Provider returns the provider name.
func (p *VaultProvider) Provider() string {
	return "vault"
}

// Supports returns true for any non-empty name.
func (p *VaultProvider) Supports(name string) bool {
	return name != ""
}

func (p *VaultProvider) read(ctx context.Context) (map[string]any, error) {
	fullPath := fmt.Sprintf("%s/data/%s", p.mount, p.path)

	secret, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault %s: %w", fullPath, ErrSecretNotFound)
	}

	// KV v2 wraps the payload; soft-deleted versions carry "data": null.
	wrapped, hasData := secret.Data["data"]
	if hasData && wrapped == nil {
		return nil, fmt.Errorf("vault %s: %w", fullPath, ErrSecretNotFound)
	}
	if data, ok := wrapped.(map[string]any); ok {
		return data, nil
	}
	return secret.Data, nil
}
