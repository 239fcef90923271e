package adapters

import (
	"context"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(Echo{})
	if _, ok := r.Lookup("echo"); !ok {
		t.Fatal("echo not registered")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("unexpected adapter")
	}
	if err := r.Register(Echo{}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "echo" {
		t.Errorf("Names() = %v", names)
	}

	var nilRegistry *Registry
	if _, ok := nilRegistry.Lookup("echo"); ok {
		t.Error("nil registry returned an adapter")
	}
}

func TestEcho(t *testing.T) {
	resp, err := Echo{}.Handle(context.Background(), &Request{
		CallID:  "c1",
		Method:  "POST",
		Subpath: "v1/x",
		Body:    map[string]any{"q": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	body := resp.Body.(map[string]any)
	if resp.StatusCode != 200 || body["call_id"] != "c1" || body["subpath"] != "v1/x" {
		t.Errorf("Handle() = %+v", resp)
	}
}
