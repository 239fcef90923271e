package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// A reference such as os.environ/ANTHROPIC_API_KEY names the variable
// directly. The exact name is tried first, then the conventional upper-case
// form with hyphens turned into underscores, so "vertex-token" also finds
// VERTEX_TOKEN. An optional prefix namespaces every lookup.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates a new environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret returns the value of the variable backing name.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	for _, envVar := range p.candidates(name) {
		if value, ok := os.LookupEnv(envVar); ok && value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("env %s: %w", p.Prefix+name, ErrSecretNotFound)
}

// ListSecrets returns the names of all variables carrying the prefix.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, p.Prefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(key, p.Prefix))
	}
	return names, nil
}

// Provider returns the provider name.
func (p *EnvProvider) Provider() string {
	return "env"
}

// Supports always returns true; any name can be an environment variable.
func (p *EnvProvider) Supports(name string) bool {
	return name != ""
}

func (p *EnvProvider) candidates(name string) []string {
	exact := p.Prefix + name
	normalized := p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if normalized == exact {
		return []string{exact}
	}
	return []string{exact, normalized}
}
