// Package endpoints holds pass-through endpoint definitions and the registry
// that persists them as a single list-typed field in a configuration store.
package endpoints

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Definition is a stored route configuration mapping a local path to an
// upstream target with its forwarding policy.
type Definition struct {
	// ID is the opaque identity key. It is generated at creation time when
	// absent and never changes afterwards.
	ID string `json:"id" yaml:"id"`

	// Path is the local route path. Required.
	Path string `json:"path" yaml:"path"`

	// Target is an absolute upstream URL or the name of a registered adapter.
	// A definition without a target is kept but not routed.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Headers are sent upstream. Values may reference secrets.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	ForwardHeaders   bool `json:"forward_headers,omitempty" yaml:"forward_headers,omitempty"`
	MergeQueryParams bool `json:"merge_query_params,omitempty" yaml:"merge_query_params,omitempty"`
	IncludeSubpath   bool `json:"include_subpath,omitempty" yaml:"include_subpath,omitempty"`
	Auth             bool `json:"auth,omitempty" yaml:"auth,omitempty"`

	// CostPerRequest is attached to telemetry for every forwarded call.
	CostPerRequest *float64 `json:"cost_per_request,omitempty" yaml:"cost_per_request,omitempty"`
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	out := d
	if d.Headers != nil {
		out.Headers = maps.Clone(d.Headers)
	}
	if d.CostPerRequest != nil {
		c := *d.CostPerRequest
		out.CostPerRequest = &c
	}
	return out
}

// Routable reports whether the definition produces a live route.
func (d Definition) Routable() bool {
	return strings.TrimSpace(d.Target) != ""
}

// Patch is a partial definition. Nil fields are left untouched by Apply.
type Patch struct {
	Path             *string
	Target           *string
	Headers          map[string]string
	ForwardHeaders   *bool
	MergeQueryParams *bool
	IncludeSubpath   *bool
	Auth             *bool
	CostPerRequest   *float64

	// id is carried only for Normalize; Apply never changes an existing id.
	id *string
}

// Apply merges the non-nil fields of p over d and returns the result.
// The ID of d is preserved.
func (p Patch) Apply(d Definition) Definition {
	out := d.Clone()
	if p.Path != nil {
		out.Path = *p.Path
	}
	if p.Target != nil {
		out.Target = *p.Target
	}
	if p.Headers != nil {
		out.Headers = maps.Clone(p.Headers)
	}
	if p.ForwardHeaders != nil {
		out.ForwardHeaders = *p.ForwardHeaders
	}
	if p.MergeQueryParams != nil {
		out.MergeQueryParams = *p.MergeQueryParams
	}
	if p.IncludeSubpath != nil {
		out.IncludeSubpath = *p.IncludeSubpath
	}
	if p.Auth != nil {
		out.Auth = *p.Auth
	}
	if p.CostPerRequest != nil {
		c := *p.CostPerRequest
		out.CostPerRequest = &c
	}
	return out
}

// Normalize converts a loosely-typed record, as stored or as received from
// a client, into a Definition. Booleans may be given as strings, numbers as
// strings, and header values as any scalar. Unknown keys are ignored.
func Normalize(record map[string]any) (Definition, error) {
	p, err := PatchFromMap(record)
	if err != nil {
		return Definition{}, err
	}
	d := p.Apply(Definition{})
	if p.id != nil {
		d.ID = *p.id
	}
	return d, nil
}

// PatchFromMap builds a Patch from a loosely-typed record. Keys holding null
// are treated as absent.
func PatchFromMap(record map[string]any) (Patch, error) {
	var p Patch
	for key, raw := range record {
		if raw == nil {
			continue
		}
		var err error
		switch key {
		case "id":
			var s string
			s, err = toString(raw)
			p.id = &s
		case "path":
			var s string
			s, err = toString(raw)
			p.Path = &s
		case "target":
			var s string
			s, err = toString(raw)
			p.Target = &s
		case "headers":
			p.Headers, err = toHeaders(raw)
		case "forward_headers":
			p.ForwardHeaders, err = toBoolPtr(raw)
		case "merge_query_params":
			p.MergeQueryParams, err = toBoolPtr(raw)
		case "include_subpath":
			p.IncludeSubpath, err = toBoolPtr(raw)
		case "auth":
			p.Auth, err = toBoolPtr(raw)
		case "cost_per_request":
			var f float64
			f, err = toFloat(raw)
			p.CostPerRequest = &f
		}
		if err != nil {
			return Patch{}, &ValidationError{Field: key, Message: err.Error()}
		}
	}
	return p, nil
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func toBoolPtr(v any) (*bool, error) {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t)))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", t)
		}
		b = parsed
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
	return &b, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toHeaders(v any) (map[string]string, error) {
	switch t := v.(type) {
	case map[string]string:
		return maps.Clone(t), nil
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, raw := range t {
			if raw == nil {
				continue
			}
			s, err := toString(raw)
			if err != nil {
				return nil, fmt.Errorf("header %q: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected object, got %T", v)
	}
}
