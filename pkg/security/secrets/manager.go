package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ReferenceMarker introduces a secret reference inside a configured value.
// Everything after the marker is the secret name.
const ReferenceMarker = "os.environ/"

// IsReference reports whether value contains a secret reference.
func IsReference(value string) bool {
	return strings.Contains(value, ReferenceMarker)
}

// ReferenceName returns the secret name referenced by value, or "".
func ReferenceName(value string) string {
	_, name, ok := strings.Cut(value, ReferenceMarker)
	if !ok {
		return ""
	}
	return name
}

// Manager resolves secrets through an ordered provider chain with caching.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager trying providers in order.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// GetSecret returns the first value any supporting provider yields.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var errs []error
	for _, p := range m.providers {
		if !p.Supports(name) {
			continue
		}
		value, err := p.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Provider(), err))
			continue
		}
		m.cache.Set(name, value)
		m.logger.Debug("secret resolved", "name", name, "provider", p.Provider())
		return value, nil
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("secret %q: %w", name, ErrSecretNotFound)
	}
	return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
}

// ResolveReference replaces the reference in value, from the marker to the
// end of the string, with the referenced secret. "Bearer os.environ/KEY"
// becomes "Bearer <KEY>". Values without a marker are returned unchanged.
// When the secret cannot be resolved the original value is returned with
// the error.
func (m *Manager) ResolveReference(ctx context.Context, value string) (string, error) {
	idx := strings.Index(value, ReferenceMarker)
	if idx < 0 {
		return value, nil
	}
	name := value[idx+len(ReferenceMarker):]
	if name == "" {
		return value, fmt.Errorf("secret reference without a name")
	}

	secret, err := m.GetSecret(ctx, name)
	if err != nil {
		return value, err
	}
	return value[:idx] + secret, nil
}

// Refresh reloads refreshable providers and clears the cache.
func (m *Manager) Refresh(ctx context.Context) error {
	var errs []error
	for _, p := range m.providers {
		r, ok := p.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := r.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Provider(), err))
		}
	}
	m.cache.Clear()
	return errors.Join(errs...)
}

// ListSecrets returns the deduplicated, sorted names from all providers.
// Providers that fail to list are skipped with a warning.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range m.providers {
		names, err := p.ListSecrets(ctx)
		if err != nil {
			m.logger.Warn("failed to list secrets", "provider", p.Provider(), "error", err)
			continue
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Providers returns the provider names in lookup order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Provider()
	}
	return names
}

// Close releases providers holding resources.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.providers {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
