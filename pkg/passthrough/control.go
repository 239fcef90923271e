package passthrough

import (
	"maps"
	"strings"

	"mercator-hq/passthrough/pkg/security/auth"
)

// DefaultControlFields are internal request parameters removed from the
// outbound body and folded into call metadata.
var DefaultControlFields = []string{
	"metadata",
	"litellm_metadata",
	"litellm_call_id",
	"litellm_trace_id",
	"litellm_session_id",
	"litellm_logging_obj",
	"proxy_server_request",
	"mock_response",
	"no-log",
	"user_api_key",
}

// ControlFields is a set of control parameter names.
type ControlFields map[string]struct{}

// NewControlFields returns the default control fields plus extra.
func NewControlFields(extra ...string) ControlFields {
	set := make(ControlFields, len(DefaultControlFields)+len(extra))
	for _, name := range DefaultControlFields {
		set[name] = struct{}{}
	}
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Split separates body into the outbound payload and the control fields
// it carried. body is not modified.
func (c ControlFields) Split(body map[string]any) (outbound, control map[string]any) {
	outbound = make(map[string]any, len(body))
	control = make(map[string]any)
	for k, v := range body {
		if _, ok := c[k]; ok {
			control[k] = v
			continue
		}
		outbound[k] = v
	}
	return outbound, control
}

// BuildMetadata assembles the call metadata. Later sources override earlier
// ones: identity fields, scalar control fields, litellm_metadata, metadata.
// Tags from the tags header are merged last.
func BuildMetadata(id *auth.Identity, control map[string]any, tagsHeader string) map[string]any {
	md := id.Metadata()
	for k, v := range control {
		if k == "metadata" || k == "litellm_metadata" {
			continue
		}
		md[k] = v
	}
	for _, nested := range []string{"litellm_metadata", "metadata"} {
		if m, ok := control[nested].(map[string]any); ok {
			maps.Copy(md, m)
		}
	}
	if tags := ParseTags(tagsHeader); len(tags) > 0 {
		md["tags"] = mergeTags(md["tags"], tags)
	}
	return md
}

// ParseTags splits a comma-separated tags header, dropping empty entries.
func ParseTags(header string) []string {
	var tags []string
	for t := range strings.SplitSeq(header, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func mergeTags(existing any, add []string) []string {
	var out []string
	seen := make(map[string]bool)
	appendTag := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	switch v := existing.(type) {
	case []string:
		for _, t := range v {
			appendTag(t)
		}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				appendTag(s)
			}
		}
	}
	for _, t := range add {
		appendTag(t)
	}
	return out
}
