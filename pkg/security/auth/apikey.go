package auth

import (
	"errors"
	"sync"

	"mercator-hq/passthrough/pkg/config"
)

var (
	// ErrInvalidKey is returned for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for keys that are configured but disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)

type keyEntry struct {
	identity Identity
	enabled  bool
}

// APIKeyValidator validates API keys against a configured set. Keys are
// indexed by hash so the raw value is not retained.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]keyEntry
}

// NewAPIKeyValidator creates a validator for keys.
func NewAPIKeyValidator(keys []config.APIKeyConfig) *APIKeyValidator {
	v := &APIKeyValidator{keys: make(map[string]keyEntry, len(keys))}
	for _, k := range keys {
		v.Add(k)
	}
	return v
}

// Add registers or replaces a key.
func (v *APIKeyValidator) Add(k config.APIKeyConfig) {
	hash := HashKey(k.Key)
	v.mu.Lock()
	v.keys[hash] = keyEntry{
		identity: Identity{
			APIKeyHash: hash,
			KeyAlias:   k.Alias,
			UserID:     k.UserID,
			UserEmail:  k.UserEmail,
			TeamID:     k.TeamID,
			TeamAlias:  k.TeamAlias,
			OrgID:      k.OrgID,
			EndUserID:  k.EndUserID,
		},
		enabled: k.IsEnabled(),
	}
	v.mu.Unlock()
}

// Remove deletes a key.
func (v *APIKeyValidator) Remove(key string) {
	v.mu.Lock()
	delete(v.keys, HashKey(key))
	v.mu.Unlock()
}

// Validate returns a copy of the identity bound to key.
func (v *APIKeyValidator) Validate(key string) (*Identity, error) {
	v.mu.RLock()
	e, ok := v.keys[HashKey(key)]
	v.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKey
	}
	if !e.enabled {
		return nil, ErrKeyDisabled
	}
	id := e.identity
	return &id, nil
}

// Len returns the number of configured keys.
func (v *APIKeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
