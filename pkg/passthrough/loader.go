package passthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/router"
)

// Routes compiles defs into route table entries: an exact route per
// definition plus a subpath route when include_subpath is set.
//
// Definitions without a target are skipped. A definition that fails to
// compile is logged and reported in the joined error; the remaining
// definitions are still returned.
func (e *Engine) Routes(ctx context.Context, defs []endpoints.Definition) ([]router.Route, error) {
	routes := make([]router.Route, 0, len(defs))
	var errs []error
	for _, def := range defs {
		if !def.Routable() {
			e.logger.DebugContext(ctx, "skipping pass-through endpoint without target", "endpoint_id", def.ID, "path", def.Path)
			continue
		}
		ep, err := e.Compile(ctx, def)
		if err != nil {
			e.logger.WarnContext(ctx, "pass-through endpoint not installed",
				"endpoint_id", def.ID,
				"path", def.Path,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		h := e.Handler(ep)
		routes = append(routes, router.Route{
			Kind:       router.KindExact,
			Path:       def.Path,
			Handler:    h,
			Auth:       def.Auth,
			EndpointID: def.ID,
		})
		if def.IncludeSubpath {
			routes = append(routes, router.Route{
				Kind:       router.KindSubpath,
				Path:       def.Path,
				Handler:    h,
				Auth:       def.Auth,
				EndpointID: def.ID,
			})
		}
	}
	return routes, errors.Join(errs...)
}

// Loader keeps the route table in sync with the static and stored
// endpoint definitions.
type Loader struct {
	engine   *Engine
	registry *endpoints.Registry
	table    *router.Table
	static   []endpoints.Definition
	logger   *slog.Logger

	// reloadMu spans read, compile and install so a reload that read an
	// older list can never install after a newer one.
	reloadMu sync.Mutex
}

// NewLoader creates a loader. static definitions come from the
// configuration file and are installed ahead of stored ones.
func NewLoader(engine *Engine, registry *endpoints.Registry, table *router.Table, static []endpoints.Definition) *Loader {
	return &Loader{
		engine:   engine,
		registry: registry,
		table:    table,
		static:   slices.Clone(static),
		logger:   slog.Default().With("component", "passthrough.loader"),
	}
}

// Table returns the route table the loader installs into.
func (l *Loader) Table() *router.Table {
	return l.table
}

// Registry returns the registry of stored definitions.
func (l *Loader) Registry() *endpoints.Registry {
	return l.registry
}

// Static returns the statically configured definitions.
func (l *Loader) Static() []endpoints.Definition {
	return slices.Clone(l.static)
}

// IsStatic reports whether id belongs to a statically configured definition.
func (l *Loader) IsStatic(id string) bool {
	return id != "" && slices.ContainsFunc(l.static, func(d endpoints.Definition) bool { return d.ID == id })
}

// Definitions returns static definitions followed by stored ones.
func (l *Loader) Definitions(ctx context.Context) ([]endpoints.Definition, error) {
	defs := slices.Clone(l.static)
	if l.registry == nil {
		return defs, nil
	}
	stored, err := l.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored endpoints: %w", err)
	}
	return append(defs, stored...), nil
}

// Reload re-derives every route and installs them wholesale. When the
// stored definitions cannot be read, the current table is kept. Invalid
// definitions are reported in the returned error after the valid ones have
// been installed.
func (l *Loader) Reload(ctx context.Context) error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	defs, err := l.Definitions(ctx)
	if err != nil {
		return err
	}
	routes, compileErr := l.engine.Routes(ctx, defs)
	installErr := l.table.Install(routes)
	l.logger.InfoContext(ctx, "pass-through routes installed",
		"definitions", len(defs),
		"routes", l.table.Len(),
		"authenticated", len(l.table.AuthenticatedRoutes()),
	)
	return errors.Join(compileErr, installErr)
}

// Validate checks def the way Reload would, without installing it.
func (l *Loader) Validate(ctx context.Context, def endpoints.Definition) error {
	_, err := l.engine.Compile(ctx, def)
	return err
}
