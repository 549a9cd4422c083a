package tenantdb

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// withBorrow attaches the request's borrow to the context. Only the
// middleware does this; handlers read it back via ConnFromContext.
func withBorrow(ctx context.Context, b *Borrowed) context.Context {
	return context.WithValue(ctx, contextKey{}, b)
}

// borrowFromContext retrieves the raw borrow. Internal: handlers get the
// Conn, never the Borrowed, so they cannot release someone else's borrow.
func borrowFromContext(ctx context.Context) (*Borrowed, bool) {
	b, ok := ctx.Value(contextKey{}).(*Borrowed)
	return b, ok
}

// ConnFromContext returns the tenant-scoped query surface attached by the
// middleware. Returns false when the request reached this point without
// tenant resolution (skip paths, misconfigured routing).
func ConnFromContext(ctx context.Context) (Conn, bool) {
	b, ok := borrowFromContext(ctx)
	if !ok {
		return nil, false
	}
	return b.Conn(), true
}

// MustConnFromContext returns the tenant-scoped query surface or panics.
// Use in handlers that are only ever mounted behind the middleware.
func MustConnFromContext(ctx context.Context) Conn {
	conn, ok := ConnFromContext(ctx)
	if !ok {
		panic("tenantdb: no tenant connection in context")
	}
	return conn
}

// TenantIDFromContext returns the tenant id of the resolved connection.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	b, ok := borrowFromContext(ctx)
	if !ok {
		return "", false
	}
	return b.TenantID(), true
}

// LoggerExtractor returns a logger context extractor that stamps records
// with the resolved tenant id.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := TenantIDFromContext(ctx); ok {
			return slog.String("tenant_id", id), true
		}
		return slog.Attr{}, false
	}
}
