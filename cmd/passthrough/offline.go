package main

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/passthrough/pkg/adapters"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/configstore"
	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/passthrough"
	"mercator-hq/passthrough/pkg/router"
	"mercator-hq/passthrough/pkg/security/auth"
	"mercator-hq/passthrough/pkg/security/secrets"
)

// offlineLoader is a loader over the configured store for commands that
// inspect or edit endpoints without a running gateway. Definitions are
// compiled exactly as the gateway would, but nothing is served.
type offlineLoader struct {
	*passthrough.Loader
	store   configstore.Store
	secrets *secrets.Manager
}

func openOfflineLoader(ctx context.Context, cfg *config.Config) (*offlineLoader, error) {
	store, err := configstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("config store: %w", err)
	}
	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("secrets: %w", err)
	}

	opts := []passthrough.Option{
		passthrough.WithSecretResolver(mgr),
		passthrough.WithAdapters(adapters.NewRegistry(adapters.Echo{})),
	}
	if guard := auth.NewGuardFromConfig(cfg.Security.Authentication); guard != nil {
		opts = append(opts, passthrough.WithAuthenticator(guard))
	}
	engine := passthrough.NewEngine(cfg.Passthrough, opts...)
	registry := endpoints.NewRegistry(store, endpoints.WithField(cfg.Store.Field))

	return &offlineLoader{
		Loader:  passthrough.NewLoader(engine, registry, router.NewTable(), cfg.Passthrough.Endpoints),
		store:   store,
		secrets: mgr,
	}, nil
}

func (l *offlineLoader) Close() error {
	return errors.Join(l.secrets.Close(), l.store.Close())
}
