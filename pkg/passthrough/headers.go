package passthrough

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/passthrough/pkg/endpoints"
	"mercator-hq/passthrough/pkg/security/secrets"
)

// Header names combined into a single Basic Authorization header instead of
// being sent upstream individually.
const (
	BasicPublicKeyHeader = "LANGFUSE_PUBLIC_KEY"
	BasicSecretKeyHeader = "LANGFUSE_SECRET_KEY"
)

// Response headers added to every relayed response.
const (
	HeaderCallID           = "X-Passthrough-Call-Id"
	HeaderAPIBase          = "X-Passthrough-Api-Base"
	HeaderResponseCost     = "X-Passthrough-Response-Cost"
	HeaderResponseDuration = "X-Passthrough-Response-Duration-Ms"
	HeaderTags             = "Tags"
)

// SecretResolver resolves secret references in configured header values.
// *secrets.Manager implements it.
type SecretResolver interface {
	ResolveReference(ctx context.Context, value string) (string, error)
}

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ResolveHeaders resolves the configured headers of def once, at load time.
//
// Values referencing a secret are substituted when the reference resolves
// and kept verbatim otherwise. The reserved public/secret key pair is
// replaced by one Authorization: Basic header; configuring only half of the
// pair is an error.
func ResolveHeaders(ctx context.Context, def endpoints.Definition, resolver SecretResolver, logger *slog.Logger) (http.Header, error) {
	out := make(http.Header, len(def.Headers))
	var public, secret string
	var hasPublic, hasSecret bool

	for name, value := range def.Headers {
		switch {
		case strings.EqualFold(name, BasicPublicKeyHeader):
			public, hasPublic = resolvePairValue(ctx, value, resolver, logger), true
		case strings.EqualFold(name, BasicSecretKeyHeader):
			secret, hasSecret = resolvePairValue(ctx, value, resolver, logger), true
		default:
			out.Set(name, resolveValue(ctx, name, value, resolver, logger))
		}
	}

	if hasPublic != hasSecret {
		missing := BasicSecretKeyHeader
		if !hasPublic {
			missing = BasicPublicKeyHeader
		}
		return nil, &ConfigError{
			EndpointID: def.ID,
			Path:       def.Path,
			Field:      "headers",
			Message:    missing + " is required when its pair is configured",
		}
	}
	if hasPublic {
		token := base64.StdEncoding.EncodeToString([]byte(public + ":" + secret))
		out.Set("Authorization", "Basic "+token)
	}
	return out, nil
}

func resolveValue(ctx context.Context, name, value string, resolver SecretResolver, logger *slog.Logger) string {
	if resolver == nil || !secrets.IsReference(value) {
		return value
	}
	resolved, err := resolver.ResolveReference(ctx, value)
	if err != nil {
		logger.Warn("header secret reference not resolved, keeping configured value",
			"header", name,
			"secret", secrets.ReferenceName(value),
			"error", err,
		)
		return value
	}
	return resolved
}

func resolvePairValue(ctx context.Context, value string, resolver SecretResolver, logger *slog.Logger) string {
	if !strings.HasPrefix(value, secrets.ReferenceMarker) {
		return value
	}
	return resolveValue(ctx, "basic auth pair", value, resolver, logger)
}

// OutboundHeaders builds the headers sent upstream. When forward is set the
// client's headers are included, minus hop-by-hop and framing headers.
// Configured headers win on conflict.
func OutboundHeaders(inbound, configured http.Header, forward bool) http.Header {
	out := make(http.Header)
	if forward {
		for name, values := range inbound {
			out[name] = append([]string(nil), values...)
		}
		removeHopByHop(out)
		out.Del("Host")
		out.Del("Content-Length")
	}
	for name, values := range configured {
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}

// removeHopByHop deletes hop-by-hop headers, including any named in the
// Connection header.
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// ResponseHeaders filters upstream response headers for relay. Framing
// headers are dropped because the relay re-chunks and decodes the body.
func ResponseHeaders(upstream http.Header, callID string, custom map[string]string) http.Header {
	out := upstream.Clone()
	if out == nil {
		out = make(http.Header)
	}
	removeHopByHop(out)
	out.Del("Content-Encoding")
	out.Del("Content-Length")
	out.Set(HeaderCallID, callID)
	for name, value := range custom {
		out.Set(name, value)
	}
	return out
}
