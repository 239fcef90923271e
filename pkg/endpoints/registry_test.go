package endpoints_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"mercator-hq/passthrough/pkg/configstore"
	"mercator-hq/passthrough/pkg/endpoints"
)

func newRegistry(t *testing.T) (*endpoints.Registry, *configstore.MemoryStore) {
	t.Helper()
	store := configstore.NewMemoryStore()
	n := 0
	reg := endpoints.NewRegistry(store, endpoints.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	return reg, store
}

func float(v float64) *float64 { return &v }

func TestRegistry_CreateGet(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	in := endpoints.Definition{
		Path:             "/vendor",
		Target:           "https://vendor.example/api",
		Headers:          map[string]string{"X-Key": "os.environ/VENDOR"},
		MergeQueryParams: true,
		CostPerRequest:   float(0.25),
	}
	created, err := reg.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	got, err := reg.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := in
	want.ID = created.ID
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestRegistry_CreateKeepsExplicitID(t *testing.T) {
	reg, _ := newRegistry(t)
	created, err := reg.Create(context.Background(), endpoints.Definition{ID: "mine", Path: "/a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "mine" {
		t.Errorf("ID = %q, want mine", created.ID)
	}
}

func TestRegistry_DistinctGeneratedIDs(t *testing.T) {
	// Uses the real uuid generator.
	reg := endpoints.NewRegistry(configstore.NewMemoryStore())
	ctx := context.Background()

	a, err := reg.Create(ctx, endpoints.Definition{Path: "/a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Create(ctx, endpoints.Definition{Path: "/b"})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Errorf("generated ids are equal: %q", a.ID)
	}
}

func TestRegistry_CreateRequiresPath(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Create(context.Background(), endpoints.Definition{Target: "https://x"})
	var verr *endpoints.ValidationError
	if !errors.As(err, &verr) || verr.Field != "path" {
		t.Fatalf("Create() error = %v, want path ValidationError", err)
	}
}

func TestRegistry_UpdatePartial(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	created, _ := reg.Create(ctx, endpoints.Definition{
		Path:           "/vendor",
		Target:         "https://old.example",
		ForwardHeaders: true,
		Headers:        map[string]string{"A": "1"},
	})

	target := "https://new.example"
	updated, err := reg.Update(ctx, created.ID, endpoints.Patch{Target: &target})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := created
	want.Target = target
	if !reflect.DeepEqual(updated, want) {
		t.Errorf("Update() = %+v, want %+v", updated, want)
	}

	got, _ := reg.Get(ctx, created.ID)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stored = %+v, want %+v", got, want)
	}
}

func TestRegistry_ReplaceResetsUnspecified(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	created, _ := reg.Create(ctx, endpoints.Definition{Path: "/a", Target: "https://a", ForwardHeaders: true})
	replaced, err := reg.Replace(ctx, created.ID, endpoints.Definition{ID: "ignored", Path: "/b"})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if replaced.ID != created.ID || replaced.Path != "/b" || replaced.Target != "" || replaced.ForwardHeaders {
		t.Errorf("Replace() = %+v", replaced)
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	a, _ := reg.Create(ctx, endpoints.Definition{Path: "/a"})
	b, _ := reg.Create(ctx, endpoints.Definition{Path: "/b"})

	removed, err := reg.Delete(ctx, a.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !reflect.DeepEqual(removed, a) {
		t.Errorf("Delete() returned %+v, want %+v", removed, a)
	}

	if _, err := reg.Get(ctx, a.ID); !errors.Is(err, endpoints.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	list, _ := reg.List(ctx)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("List() = %+v, want only %s", list, b.ID)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	reg.Create(ctx, endpoints.Definition{Path: "/a"})
	before, _ := store.GetField(ctx, endpoints.DefaultField)

	path := "/x"
	if _, err := reg.Update(ctx, "missing", endpoints.Patch{Path: &path}); !errors.Is(err, endpoints.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if _, err := reg.Delete(ctx, "missing"); !errors.Is(err, endpoints.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}

	after, _ := store.GetField(ctx, endpoints.DefaultField)
	if string(before) != string(after) {
		t.Error("failed mutation changed stored state")
	}
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	for _, p := range []string{"/c", "/a", "/b"} {
		if _, err := reg.Create(ctx, endpoints.Definition{Path: p}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, d := range list {
		paths = append(paths, d.Path)
	}
	if !reflect.DeepEqual(paths, []string{"/c", "/a", "/b"}) {
		t.Errorf("List() order = %v", paths)
	}
}

func TestRegistry_LooseStoredRecords(t *testing.T) {
	store := configstore.NewMemoryStore()
	ctx := context.Background()
	raw := json.RawMessage(`[
		{"path": "/legacy", "target": "https://legacy", "auth": "True", "cost_per_request": "1.5", "headers": {"X-Num": 7}},
		{"id": "keep", "path": "/other", "include_subpath": true, "forward_headers": null}
	]`)
	if err := store.SetField(ctx, endpoints.DefaultField, raw); err != nil {
		t.Fatal(err)
	}

	reg := endpoints.NewRegistry(store, endpoints.WithIDGenerator(func() string { return "generated" }))
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries", len(list))
	}

	legacy := list[0]
	if legacy.ID != "generated" || !legacy.Auth || legacy.CostPerRequest == nil || *legacy.CostPerRequest != 1.5 {
		t.Errorf("legacy record normalized to %+v", legacy)
	}
	if legacy.Headers["X-Num"] != "7" {
		t.Errorf("header X-Num = %q", legacy.Headers["X-Num"])
	}
	if list[1].ID != "keep" || !list[1].IncludeSubpath {
		t.Errorf("second record normalized to %+v", list[1])
	}

	// The generated id was written back and is stable.
	got, err := reg.Get(ctx, "generated")
	if err != nil || got.Path != "/legacy" {
		t.Errorf("Get(generated) = %+v, %v", got, err)
	}
}

func TestRegistry_CustomField(t *testing.T) {
	store := configstore.NewMemoryStore()
	reg := endpoints.NewRegistry(store, endpoints.WithField("custom"))
	ctx := context.Background()
	if _, err := reg.Create(ctx, endpoints.Definition{Path: "/a"}); err != nil {
		t.Fatal(err)
	}
	raw, _ := store.GetField(ctx, "custom")
	if raw == nil {
		t.Error("expected definitions under field custom")
	}
}

// stallingStore stalls the next SetField after arm until released. The
// write has not reached the store while stalled.
type stallingStore struct {
	*configstore.MemoryStore

	mu      sync.Mutex
	armed   bool
	stalled chan struct{}
	release chan struct{}
}

func (s *stallingStore) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.stalled = make(chan struct{})
	s.release = make(chan struct{})
}

func (s *stallingStore) SetField(ctx context.Context, name string, value json.RawMessage) error {
	s.mu.Lock()
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if armed {
		close(s.stalled)
		<-s.release
	}
	return s.MemoryStore.SetField(ctx, name, value)
}

func TestRegistry_IDWriteBackDoesNotLoseCreate(t *testing.T) {
	store := &stallingStore{MemoryStore: configstore.NewMemoryStore()}
	ctx := context.Background()
	if err := store.SetField(ctx, endpoints.DefaultField, json.RawMessage(`[{"path": "/legacy", "target": "https://legacy.example"}]`)); err != nil {
		t.Fatal(err)
	}
	reg := endpoints.NewRegistry(store)

	store.arm()
	listed := make(chan []endpoints.Definition, 1)
	go func() {
		defs, err := reg.List(ctx)
		if err != nil {
			t.Errorf("List() error = %v", err)
		}
		listed <- defs
	}()
	<-store.stalled

	type result struct {
		def endpoints.Definition
		err error
	}
	createdCh := make(chan result, 1)
	go func() {
		def, err := reg.Create(ctx, endpoints.Definition{Path: "/new", Target: "https://new.example"})
		createdCh <- result{def, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	var legacy []endpoints.Definition
	var created result
	select {
	case legacy = <-listed:
	case <-time.After(5 * time.Second):
		t.Fatal("List() did not finish")
	}
	select {
	case created = <-createdCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Create() did not finish")
	}
	if created.err != nil {
		t.Fatalf("Create() error = %v", created.err)
	}

	if _, err := reg.Get(ctx, created.def.ID); err != nil {
		t.Errorf("Get(created) error = %v", err)
	}
	defs, err := reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("List() returned %d definitions, want 2", len(defs))
	}
	if len(legacy) != 1 || defs[0].ID != legacy[0].ID {
		t.Errorf("generated id changed: listed %+v, stored %+v", legacy, defs[0])
	}
}
