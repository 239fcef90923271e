// Package adapters holds named in-process targets. An endpoint whose
// target names a registered adapter is served by the adapter instead of
// being forwarded to a URL.
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"mercator-hq/passthrough/pkg/security/auth"
)

// Request is the transformed call handed to an adapter.
type Request struct {
	CallID   string
	Method   string
	Subpath  string
	Header   http.Header
	Body     map[string]any
	Metadata map[string]any
	Identity *auth.Identity
}

// Response is an adapter result. Body is encoded as JSON.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       any
}

// Adapter serves calls for endpoints that target it.
type Adapter interface {
	Name() string
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// Registry maps adapter names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Register adds a. Registering a name twice is an error.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Lookup returns the adapter registered under name. A nil registry has no
// adapters.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
