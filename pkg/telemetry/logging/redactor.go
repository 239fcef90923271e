package logging

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "[REDACTED]"

var defaultSensitiveHeaders = []string{
	"authorization",
	"proxy-authorization",
	"x-api-key",
	"api-key",
	"x-goog-api-key",
	"cookie",
	"set-cookie",
}

var (
	sensitiveKeys = map[string]struct{}{
		"password": {}, "secret": {}, "token": {}, "api_key": {}, "apikey": {},
		"access_token": {}, "refresh_token": {}, "client_secret": {},
	}
	sensitiveSuffixes = []string{"_password", "_secret", "_api_key"}
)

var (
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9\-._~+/]+=*`)
	skKeyPattern  = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{8,}`)
)

// Redactor masks credentials in headers and log attributes.
type Redactor struct {
	headers map[string]struct{}
}

// NewRedactor masks the default credential headers plus extra.
func NewRedactor(extra []string) *Redactor {
	r := &Redactor{headers: make(map[string]struct{})}
	for _, h := range defaultSensitiveHeaders {
		r.headers[h] = struct{}{}
	}
	for _, h := range extra {
		r.headers[strings.ToLower(h)] = struct{}{}
	}
	return r
}

// IsSensitiveHeader reports whether a header's value must be masked.
func (r *Redactor) IsSensitiveHeader(name string) bool {
	_, ok := r.headers[strings.ToLower(name)]
	return ok
}

// Headers returns a copy of h with sensitive values masked.
func (r *Redactor) Headers(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if r.IsSensitiveHeader(k) {
			out[k] = []string{Redacted}
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// String masks bearer tokens and sk- style keys inside s.
func (r *Redactor) String(s string) string {
	s = bearerPattern.ReplaceAllString(s, "$1 "+Redacted)
	return skKeyPattern.ReplaceAllString(s, Redacted)
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr masking attributes whose
// key looks sensitive and credentials embedded in string values.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if r.IsSensitiveHeader(key) {
		return slog.String(a.Key, Redacted)
	}
	if _, ok := sensitiveKeys[key]; ok {
		return slog.String(a.Key, Redacted)
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(key, suffix) {
			return slog.String(a.Key, Redacted)
		}
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if v := a.Value.String(); v != "" {
			if masked := r.String(v); masked != v {
				return slog.String(a.Key, masked)
			}
		}
	case slog.KindAny:
		if h, ok := a.Value.Any().(http.Header); ok {
			return slog.Any(a.Key, r.Headers(h))
		}
	}
	return a
}
