package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultField is the store field holding the definition list.
const DefaultField = "pass_through_endpoints"

// Store is the configuration persistence the registry reads and writes.
// GetField returns a nil value when the field has never been written.
type Store interface {
	GetField(ctx context.Context, name string) (json.RawMessage, error)
	SetField(ctx context.Context, name string, value json.RawMessage) error
}

// Registry performs CRUD over endpoint definitions. Every mutation reads the
// whole list from the store, changes it in memory and writes the whole list
// back. Mutations from this process are serialized; writers in other
// processes are not, and the last write wins.
type Registry struct {
	store  Store
	field  string
	newID  func() string
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithField overrides the store field name.
func WithField(name string) Option {
	return func(r *Registry) {
		if name != "" {
			r.field = name
		}
	}
}

// WithIDGenerator overrides id generation. Used by tests.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		field:  DefaultField,
		newID:  uuid.NewString,
		logger: slog.Default().With("component", "endpoints.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Field returns the store field the registry persists to.
func (r *Registry) Field() string {
	return r.field
}

// List returns all definitions in insertion order.
func (r *Registry) List(ctx context.Context) ([]Definition, error) {
	return r.load(ctx)
}

// Get returns the definition with the given id.
func (r *Registry) Get(ctx context.Context, id string) (Definition, error) {
	defs, err := r.load(ctx)
	if err != nil {
		return Definition{}, err
	}
	if i := indexOf(defs, id); i >= 0 {
		return defs[i], nil
	}
	return Definition{}, fmt.Errorf("endpoint %q: %w", id, ErrNotFound)
}

// Create appends def, assigning an id when it has none, and persists the list.
func (r *Registry) Create(ctx context.Context, def Definition) (Definition, error) {
	if err := Validate(def); err != nil {
		return Definition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	defs, err := r.loadLocked(ctx)
	if err != nil {
		return Definition{}, err
	}

	def = def.Clone()
	if def.ID == "" {
		def.ID = r.newID()
	}
	defs = append(defs, def)

	if err := r.save(ctx, defs); err != nil {
		return Definition{}, err
	}
	r.logger.Info("pass-through endpoint created", "id", def.ID, "path", def.Path)
	return def, nil
}

// Update merges the non-nil fields of patch over the stored definition.
// The id is preserved.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (Definition, error) {
	return r.mutate(ctx, id, func(existing Definition) Definition {
		return patch.Apply(existing)
	})
}

// Replace swaps the stored definition for def wholesale, keeping the id.
// Fields absent from def are reset to their zero values.
func (r *Registry) Replace(ctx context.Context, id string, def Definition) (Definition, error) {
	return r.mutate(ctx, id, func(Definition) Definition {
		return def.Clone()
	})
}

// Delete removes the definition and returns the removed value.
func (r *Registry) Delete(ctx context.Context, id string) (Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs, err := r.loadLocked(ctx)
	if err != nil {
		return Definition{}, err
	}
	i := indexOf(defs, id)
	if i < 0 {
		return Definition{}, fmt.Errorf("endpoint %q: %w", id, ErrNotFound)
	}

	removed := defs[i]
	defs = append(defs[:i], defs[i+1:]...)

	if err := r.save(ctx, defs); err != nil {
		return Definition{}, err
	}
	r.logger.Info("pass-through endpoint deleted", "id", id, "path", removed.Path)
	return removed, nil
}

func (r *Registry) mutate(ctx context.Context, id string, fn func(Definition) Definition) (Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs, err := r.loadLocked(ctx)
	if err != nil {
		return Definition{}, err
	}
	i := indexOf(defs, id)
	if i < 0 {
		return Definition{}, fmt.Errorf("endpoint %q: %w", id, ErrNotFound)
	}

	updated := fn(defs[i])
	updated.ID = defs[i].ID
	if err := Validate(updated); err != nil {
		return Definition{}, err
	}
	defs[i] = updated

	if err := r.save(ctx, defs); err != nil {
		return Definition{}, err
	}
	r.logger.Info("pass-through endpoint updated", "id", id, "path", updated.Path)
	return updated, nil
}

// load reads and normalizes the stored list for readers. Records stored
// without an id are assigned one and written back under the mutation lock,
// so the id stays stable across reads and no concurrent mutation is lost.
func (r *Registry) load(ctx context.Context) ([]Definition, error) {
	defs, missingIDs, err := r.read(ctx)
	if err != nil || missingIDs == 0 {
		return defs, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

// loadLocked is load for callers holding r.mu.
func (r *Registry) loadLocked(ctx context.Context) ([]Definition, error) {
	defs, missingIDs, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	if missingIDs > 0 {
		for i := range defs {
			if defs[i].ID == "" {
				defs[i].ID = r.newID()
			}
		}
		if err := r.save(ctx, defs); err != nil {
			r.logger.Warn("failed to persist generated endpoint ids", "error", err)
		}
	}
	return defs, nil
}

func (r *Registry) read(ctx context.Context) ([]Definition, int, error) {
	raw, err := r.store.GetField(ctx, r.field)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", r.field, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, 0, nil
	}

	defs, missingIDs, err := decodeList(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", r.field, err)
	}
	return defs, missingIDs, nil
}

func (r *Registry) save(ctx context.Context, defs []Definition) error {
	if defs == nil {
		defs = []Definition{}
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.field, err)
	}
	if err := r.store.SetField(ctx, r.field, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.field, err)
	}
	return nil
}

// DecodeList normalizes a stored JSON list of loosely-typed records.
func DecodeList(raw json.RawMessage) ([]Definition, error) {
	defs, _, err := decodeList(raw)
	return defs, err
}

func decodeList(raw json.RawMessage) ([]Definition, int, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, 0, err
	}

	defs := make([]Definition, 0, len(records))
	missing := 0
	for i, rec := range records {
		def, err := Normalize(rec)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		if def.ID == "" {
			missing++
		}
		defs = append(defs, def)
	}
	return defs, missing, nil
}

func indexOf(defs []Definition, id string) int {
	for i := range defs {
		if defs[i].ID == id {
			return i
		}
	}
	return -1
}
