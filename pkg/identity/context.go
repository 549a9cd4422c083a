package identity

import "context"

// Identity is the result of bearer-token verification, performed upstream of
// this package. By the time tenant resolution runs, the auth middleware has
// validated the token and stored the claims here; this package only carries
// them through the request context.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
}

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// WithIdentity stores a verified identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext retrieves the verified identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// TenantIDFromContext returns the tenant claim of the verified identity.
// An empty tenant id with ok=true means the token carried no tenant claim,
// which callers must treat the same as a missing identity.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return id.TenantID, true
}
