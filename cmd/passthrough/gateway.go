package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"mercator-hq/passthrough/pkg/adapters"
	"mercator-hq/passthrough/pkg/calllog"
	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/configstore"
	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/passthrough"
	"mercator-hq/passthrough/pkg/router"
	"mercator-hq/passthrough/pkg/security/auth"
	"mercator-hq/passthrough/pkg/security/secrets"
	tlsreload "mercator-hq/passthrough/pkg/security/tls"
	"mercator-hq/passthrough/pkg/server"
	"mercator-hq/passthrough/pkg/telemetry/health"
	"mercator-hq/passthrough/pkg/telemetry/hooks"
	"mercator-hq/passthrough/pkg/telemetry/metrics"
	"mercator-hq/passthrough/pkg/telemetry/tracing"
)

// gateway owns every long-lived component of a running process.
type gateway struct {
	cfg        *config.Config
	store      configstore.Store
	secrets    *secrets.Manager
	tracer     *tracing.Tracer
	collector  *metrics.Collector
	dispatcher *hooks.Dispatcher
	callLog    *calllog.SQLiteStorage
	recorder   *calllog.Recorder
	scheduler  *calllog.Scheduler
	certs      *tlsreload.Reloader
	loader     *passthrough.Loader
	server     *server.Server
	logger     *slog.Logger
}

// newGateway assembles the gateway described by cfg and installs the
// initial route table. On error everything opened so far is closed.
func newGateway(ctx context.Context, cfg *config.Config) (g *gateway, err error) {
	g = &gateway{
		cfg:    cfg,
		logger: slog.Default().With("component", "gateway"),
	}
	defer func() {
		if err != nil {
			g.close(context.WithoutCancel(ctx))
			g = nil
		}
	}()

	g.tracer, err = tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return g, fmt.Errorf("tracing: %w", err)
	}

	g.store, err = configstore.Open(ctx, cfg.Store)
	if err != nil {
		return g, fmt.Errorf("config store: %w", err)
	}

	g.secrets, err = secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return g, fmt.Errorf("secrets: %w", err)
	}
	g.logger.Info("secret providers configured", "providers", g.secrets.Providers())
	if g.logger.Enabled(ctx, slog.LevelDebug) {
		names, _ := g.secrets.ListSecrets(ctx)
		g.logger.Debug("secrets available", "count", len(names))
	}

	g.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	sinks := hooks.Multi{g.collector.Hooks(), hooks.NewLoggingHooks(slog.Default())}
	if cfg.CallLog.Enabled {
		g.callLog, err = calllog.OpenSQLite(cfg.CallLog.Path)
		if err != nil {
			return g, fmt.Errorf("call log: %w", err)
		}
		g.recorder = calllog.NewRecorder(g.callLog, cfg.CallLog)
		g.scheduler = calllog.NewScheduler(calllog.NewPruner(g.callLog, cfg.CallLog.RetentionDays), cfg.CallLog.PruneSchedule)
		sinks = append(sinks, g.recorder)
	}
	g.dispatcher = hooks.NewDispatcher(sinks, hooks.DefaultHookTimeout)
	g.dispatcher.OnError(g.collector.RecordHookFailure)

	engineOpts := []passthrough.Option{
		passthrough.WithHooks(g.dispatcher),
		passthrough.WithSecretResolver(g.secrets),
		passthrough.WithAdapters(adapters.NewRegistry(adapters.Echo{})),
		passthrough.WithTracer(g.tracer),
	}
	guard := auth.NewGuardFromConfig(cfg.Security.Authentication)
	if guard != nil {
		engineOpts = append(engineOpts, passthrough.WithAuthenticator(guard))
	}
	engine := passthrough.NewEngine(cfg.Passthrough, engineOpts...)

	registry := endpoints.NewRegistry(g.store, endpoints.WithField(cfg.Store.Field))
	g.loader = passthrough.NewLoader(engine, registry, router.NewTable(), cfg.Passthrough.Endpoints)
	if err := g.reload(ctx); err != nil {
		// Valid definitions are installed; the rest are reported and skipped.
		g.logger.Warn("some endpoint definitions were not installed", "error", err)
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("store", health.PingCheck(g.store))
	checker.RegisterCheck("routes", health.MinimumCheck("routes", routableCount(cfg.Passthrough.Endpoints), g.loader.Table().Len))
	if g.callLog != nil {
		checker.RegisterCheck("call_log", health.PingCheck(g.callLog))
	}

	if cfg.Security.TLS.Enabled {
		g.certs, err = tlsreload.NewReloader(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		if err != nil {
			return g, fmt.Errorf("tls: %w", err)
		}
	}

	serverOpts := []server.Option{
		server.WithCollector(g.collector),
		server.WithChecker(checker),
		server.WithVersion(health.NewVersionInfo(Version, GitCommit, BuildDate)),
	}
	if guard != nil {
		serverOpts = append(serverOpts, server.WithGuard(guard))
	}
	if g.certs != nil {
		serverOpts = append(serverOpts, server.WithCertificates(g.certs))
	}
	g.server = server.New(cfg, g.loader, serverOpts...)

	return g, nil
}

func (g *gateway) reload(ctx context.Context) error {
	err := g.loader.Reload(ctx)
	g.collector.RecordReload(err)
	table := g.loader.Table()
	g.collector.SetRoutes(table.Len(), len(table.AuthenticatedRoutes()))
	return err
}

// refresh reloads the secret providers, then the route table. It runs when
// the store file changes so rotated credentials are picked up with it.
func (g *gateway) refresh(ctx context.Context) error {
	var errs []error
	if err := g.secrets.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh secrets: %w", err))
	}
	if err := g.reload(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// run serves on ln, or on the configured address when ln is nil, together
// with the background workers, until ctx is done or one of them fails.
func (g *gateway) run(ctx context.Context, ln net.Listener) error {
	var watcher *configstore.Watcher
	if fs, ok := g.store.(*configstore.FileStore); ok && g.cfg.Store.File.Watch {
		w, err := configstore.NewWatcher(fs, g.cfg.Store.File.DebounceInterval)
		if err != nil {
			return err
		}
		watcher = w
	}

	group, ctx := errgroup.WithContext(ctx)

	if g.scheduler != nil {
		if err := g.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	group.Go(func() error {
		if ln != nil {
			return g.server.Serve(ctx, ln)
		}
		return g.server.Run(ctx)
	})

	if watcher != nil {
		group.Go(func() error {
			return watcher.Watch(ctx, func(ctx context.Context) error {
				if err := g.refresh(ctx); err != nil {
					g.logger.Warn("reload after store change reported errors", "error", err)
				}
				return nil
			})
		})
	}

	if g.certs != nil {
		group.Go(func() error {
			return g.certs.Watch(ctx)
		})
	}

	return group.Wait()
}

// close releases resources in reverse dependency order: in-flight hooks
// are drained before the call log that records them is closed.
func (g *gateway) close(ctx context.Context) error {
	var errs []error
	if g.dispatcher != nil {
		if err := g.dispatcher.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for hooks: %w", err))
		}
	}
	if g.scheduler != nil {
		g.scheduler.Stop()
	}
	if g.recorder != nil {
		errs = append(errs, g.recorder.Close())
	}
	if g.callLog != nil {
		errs = append(errs, g.callLog.Close())
	}
	if g.secrets != nil {
		errs = append(errs, g.secrets.Close())
	}
	if g.store != nil {
		errs = append(errs, g.store.Close())
	}
	if g.tracer != nil {
		errs = append(errs, g.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func routableCount(defs []endpoints.Definition) int {
	n := 0
	for _, d := range defs {
		if d.Routable() {
			n++
		}
	}
	return n
}
