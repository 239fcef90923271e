package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/proxy/types"
)

// Guard is the authentication check placed in front of the management API
// and of pass-through routes declared with auth.
type Guard struct {
	validator *APIKeyValidator
	sources   []config.APIKeySource
	logger    *slog.Logger
}

// NewGuard creates a guard extracting keys from sources in order.
func NewGuard(validator *APIKeyValidator, sources []config.APIKeySource) *Guard {
	return &Guard{
		validator: validator,
		sources:   sources,
		logger:    slog.Default().With("component", "auth"),
	}
}

// NewGuardFromConfig returns a guard for cfg, or nil when authentication is
// disabled.
func NewGuardFromConfig(cfg config.AuthenticationConfig) *Guard {
	if !cfg.Enabled {
		return nil
	}
	return NewGuard(NewAPIKeyValidator(cfg.Keys), cfg.Sources)
}

// Handle wraps next with the API key check. Rejected requests get a 401 in
// the standard error envelope; accepted ones carry an Identity.
func (g *Guard) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := g.extract(r)
		if !ok {
			g.reject(w, r, "missing API key", "no API key found")
			return
		}

		id, err := g.validator.Validate(key)
		if err != nil {
			g.reject(w, r, err.Error(), "invalid API key")
			return
		}
		id.RequestRoute = r.URL.Path

		g.logger.Debug("request authenticated",
			"user_id", id.UserID,
			"team_id", id.TeamID,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason, message string) {
	g.logger.Warn("authentication failed",
		"reason", reason,
		"remote_addr", r.RemoteAddr,
		"path", r.URL.Path,
	)
	types.WriteError(w, types.NewErrorResponse(http.StatusUnauthorized,
		message, types.ErrorTypeAuthentication, "api_key"))
}

func (g *Guard) extract(r *http.Request) (string, bool) {
	for _, src := range g.sources {
		var value string
		switch src.Type {
		case "header":
			value = r.Header.Get(src.Name)
			if value != "" && src.Scheme != "" {
				scheme, rest, found := strings.Cut(value, " ")
				if !found || !strings.EqualFold(scheme, src.Scheme) {
					continue
				}
				value = strings.TrimSpace(rest)
			}
		case "query":
			value = r.URL.Query().Get(src.Name)
		}
		if value != "" {
			return value, true
		}
	}
	return "", false
}
