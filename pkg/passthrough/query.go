package passthrough

import (
	"fmt"
	"net/url"
	"strings"

	"mercator-hq/passthrough/pkg/streaming"
)

// JoinSubpath appends a captured subpath to base with exactly one
// separating slash. An empty subpath leaves base unchanged.
func JoinSubpath(base, subpath string) (string, error) {
	subpath = strings.TrimLeft(subpath, "/")
	if subpath == "" {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", base, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + subpath
	u.RawPath = ""
	return u.String(), nil
}

// MergeQuery overlays the client query onto the target URL's query. The
// client wins on key collision, keeping all of its values for that key.
// The result is encoded with sorted keys.
func MergeQuery(target string, client url.Values) (string, error) {
	if len(client) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", target, err)
	}
	q := u.Query()
	for key, values := range client {
		q[key] = append([]string(nil), values...)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// streamRequested reports whether the client asked for a streamed response.
func streamRequested(q url.Values) bool {
	return strings.EqualFold(q.Get("stream"), "true")
}

var vertexMarkers = []string{
	"generateContent",
	"streamGenerateContent",
	"rawPredict",
	"streamRawPredict",
}

// DetectFlavor classifies the provider framing of a target URL.
func DetectFlavor(target string) streaming.Flavor {
	u, err := url.Parse(target)
	if err != nil {
		return streaming.FlavorGeneric
	}
	for _, m := range vertexMarkers {
		if strings.Contains(u.Path, m) {
			return streaming.FlavorVertexAI
		}
	}
	if strings.EqualFold(u.Hostname(), "api.anthropic.com") {
		return streaming.FlavorAnthropic
	}
	return streaming.FlavorGeneric
}

// apiBase returns scheme://host of target.
func apiBase(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
