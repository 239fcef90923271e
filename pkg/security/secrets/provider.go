package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned by providers that have no value for a name.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
//
// Providers are chained by the Manager; the first provider that supports a
// name and returns a value wins.
type SecretProvider interface {
	// GetSecret retrieves a secret by name.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns the secret names available from this provider.
	// Values are never included.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the provider name (env, file, vault).
	Provider() string

	// Supports indicates if this provider may hold the given secret name.
	Supports(name string) bool
}

// RefreshableProvider can reload secrets without restart.
type RefreshableProvider interface {
	SecretProvider

	// Refresh drops anything the provider cached from its backend.
	Refresh(ctx context.Context) error
}
