// Package router holds the live route table for pass-through endpoints.
//
// Routes are data, not code: the table is rebuilt from endpoint definitions
// on startup and after every registry mutation, then swapped in whole.
// Requests read the current snapshot without locking and always see either
// the old or the new table.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"mercator-hq/passthrough/pkg/proxy/types"
)

// Kind distinguishes the two route variants.
type Kind int

const (
	// KindExact matches the route path only.
	KindExact Kind = iota

	// KindSubpath matches the route path followed by "/" and at least one
	// more character, capturing the remainder.
	KindSubpath
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindSubpath:
		return "subpath"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultMethods are the methods accepted by pass-through routes.
var DefaultMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// Route is one installed route.
type Route struct {
	Kind    Kind
	Path    string
	Methods []string
	Handler http.Handler

	// Auth marks routes guarded by the authentication check. The guard is
	// part of Handler; the flag feeds AuthenticatedRoutes.
	Auth bool

	// EndpointID identifies the definition the route was derived from.
	EndpointID string
}

// Pattern renders the route the way it is displayed: "/path" or "/path/*".
func (r *Route) Pattern() string {
	if r.Kind == KindSubpath {
		return strings.TrimSuffix(r.Path, "/") + "/*"
	}
	return r.Path
}

func (r *Route) allows(method string) bool {
	return slices.Contains(r.Methods, method)
}

type snapshot struct {
	exact   map[string]*Route
	subpath []*Route // longest prefix first
	all     []Route
	authed  []string
}

// Table is the dispatcher. The zero value is not usable; call NewTable.
type Table struct {
	mu   sync.Mutex // serializes Install
	snap atomic.Pointer[snapshot]
}

// NewTable creates an empty route table.
func NewTable() *Table {
	t := &Table{}
	t.snap.Store(&snapshot{exact: map[string]*Route{}})
	return t
}

// Install replaces the whole table with routes. Invalid routes are skipped
// and reported in the returned error; valid ones are installed regardless.
// When two routes share a pattern the first one wins.
func (t *Table) Install(routes []Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := &snapshot{exact: make(map[string]*Route, len(routes))}
	seenSubpath := map[string]bool{}
	seenAuth := map[string]bool{}
	var errs []error

	for i := range routes {
		r := routes[i]
		if err := validate(&r); err != nil {
			errs = append(errs, err)
			continue
		}
		if len(r.Methods) == 0 {
			r.Methods = DefaultMethods
		}
		r.Methods = slices.Clone(r.Methods)

		switch r.Kind {
		case KindExact:
			if _, dup := next.exact[r.Path]; dup {
				continue
			}
			next.exact[r.Path] = &r
		case KindSubpath:
			if seenSubpath[r.Path] {
				continue
			}
			seenSubpath[r.Path] = true
			next.subpath = append(next.subpath, &r)
		}
		next.all = append(next.all, r)

		if r.Auth && !seenAuth[r.Path] {
			seenAuth[r.Path] = true
			next.authed = append(next.authed, r.Path)
		}
	}

	sort.SliceStable(next.subpath, func(i, j int) bool {
		return len(next.subpath[i].Path) > len(next.subpath[j].Path)
	})

	t.snap.Store(next)
	return errors.Join(errs...)
}

func validate(r *Route) error {
	if r.Path == "" || r.Path[0] != '/' {
		return fmt.Errorf("route %q: path must start with /", r.Path)
	}
	if r.Handler == nil {
		return fmt.Errorf("route %q: handler is required", r.Path)
	}
	if r.Kind != KindExact && r.Kind != KindSubpath {
		return fmt.Errorf("route %q: unknown kind %d", r.Path, int(r.Kind))
	}
	return nil
}

// Match resolves path to a route. For subpath routes the captured remainder
// is returned; it is empty for exact routes.
func (t *Table) Match(path string) (*Route, string, bool) {
	s := t.snap.Load()

	if r, ok := s.exact[path]; ok {
		return r, "", true
	}
	for _, r := range s.subpath {
		prefix := strings.TrimSuffix(r.Path, "/") + "/"
		if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
			return r, path[len(prefix):], true
		}
	}
	return nil, "", false
}

// Routes returns a copy of the installed routes in install order.
func (t *Table) Routes() []Route {
	return slices.Clone(t.snap.Load().all)
}

// Len returns the number of installed routes.
func (t *Table) Len() int {
	return len(t.snap.Load().all)
}

// AuthenticatedRoutes returns the paths of routes installed with auth.
func (t *Table) AuthenticatedRoutes() []string {
	return slices.Clone(t.snap.Load().authed)
}

// ServeHTTP dispatches r to the matching route handler.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, subpath, ok := t.Match(r.URL.Path)
	if !ok {
		types.WriteError(w, types.NewErrorResponse(http.StatusNotFound,
			fmt.Sprintf("no route for %s", r.URL.Path), types.ErrorTypeNotFound, "path"))
		return
	}
	if !route.allows(r.Method) {
		w.Header().Set("Allow", strings.Join(route.Methods, ", "))
		types.WriteError(w, types.NewErrorResponse(http.StatusMethodNotAllowed,
			fmt.Sprintf("method %s not allowed on %s", r.Method, route.Pattern()), types.ErrorTypeMethodNotAllowed, "method"))
		return
	}

	ctx := context.WithValue(r.Context(), matchKey{}, Match{Route: route, Subpath: subpath})
	route.Handler.ServeHTTP(w, r.WithContext(ctx))
}

// Match describes how a request was routed.
type Match struct {
	Route   *Route
	Subpath string
}

type matchKey struct{}

// FromContext returns the routing result stored by ServeHTTP.
func FromContext(ctx context.Context) (Match, bool) {
	m, ok := ctx.Value(matchKey{}).(Match)
	return m, ok
}

// Subpath returns the captured subpath for the request, or "".
func Subpath(ctx context.Context) string {
	m, _ := FromContext(ctx)
	return m.Subpath
}
