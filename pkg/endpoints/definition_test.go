package endpoints

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		record    map[string]any
		want      func(Definition) bool
		wantField string
	}{
		{
			name:   "string booleans",
			record: map[string]any{"path": "/a", "merge_query_params": "TRUE", "forward_headers": "false"},
			want:   func(d Definition) bool { return d.MergeQueryParams && !d.ForwardHeaders },
		},
		{
			name:   "null fields are absent",
			record: map[string]any{"path": "/a", "target": nil, "headers": nil},
			want:   func(d Definition) bool { return d.Target == "" && d.Headers == nil },
		},
		{
			name:   "numeric cost",
			record: map[string]any{"path": "/a", "cost_per_request": 0.5},
			want:   func(d Definition) bool { return d.CostPerRequest != nil && *d.CostPerRequest == 0.5 },
		},
		{
			name:      "bad boolean",
			record:    map[string]any{"path": "/a", "auth": "maybe"},
			wantField: "auth",
		},
		{
			name:      "headers not an object",
			record:    map[string]any{"path": "/a", "headers": []any{"x"}},
			wantField: "headers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Normalize(tt.record)
			if tt.wantField != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.wantField {
					t.Fatalf("Normalize() error = %v, want field %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !tt.want(d) {
				t.Errorf("Normalize() = %+v", d)
			}
		})
	}
}

func TestPatchApply_PreservesID(t *testing.T) {
	p, err := PatchFromMap(map[string]any{"id": "other", "path": "/new"})
	if err != nil {
		t.Fatal(err)
	}
	out := p.Apply(Definition{ID: "orig", Path: "/old", Target: "https://t"})
	if out.ID != "orig" || out.Path != "/new" || out.Target != "https://t" {
		t.Errorf("Apply() = %+v", out)
	}
}

func TestClone_IsDeep(t *testing.T) {
	cost := 1.0
	d := Definition{Headers: map[string]string{"a": "1"}, CostPerRequest: &cost}
	c := d.Clone()
	c.Headers["a"] = "2"
	*c.CostPerRequest = 2
	if d.Headers["a"] != "1" || *d.CostPerRequest != 1 {
		t.Error("Clone shares state with the original")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Definition{Path: "/ok"}); err != nil {
		t.Errorf("Validate(/ok) = %v", err)
	}
	if err := Validate(Definition{}); err == nil {
		t.Error("Validate(empty) = nil")
	}
	if err := Validate(Definition{Path: "no-slash"}); err == nil {
		t.Error("Validate(no-slash) = nil")
	}
}
