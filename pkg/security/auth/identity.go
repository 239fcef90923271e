package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	APIKeyHash   string
	KeyAlias     string
	UserID       string
	UserEmail    string
	TeamID       string
	TeamAlias    string
	OrgID        string
	EndUserID    string
	RequestRoute string
}

// HashKey returns the hex sha256 of an API key. Raw keys never leave the
// guard; the hash is what telemetry records.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Metadata flattens the identity into the user_api_key_* fields carried in
// call metadata. Empty fields are omitted.
func (id *Identity) Metadata() map[string]any {
	out := make(map[string]any, 8)
	if id == nil {
		return out
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("user_api_key_hash", id.APIKeyHash)
	set("user_api_key_alias", id.KeyAlias)
	set("user_api_key_user_id", id.UserID)
	set("user_api_key_team_id", id.TeamID)
	set("user_api_key_org_id", id.OrgID)
	set("user_api_key_user_email", id.UserEmail)
	set("user_api_key_end_user_id", id.EndUserID)
	set("user_api_key_request_route", id.RequestRoute)
	return out
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by the guard.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
