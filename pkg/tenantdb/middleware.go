package tenantdb

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tallyhq/tally/pkg/identity"
)

// Middleware resolves the request's tenant and attaches a borrowed database
// handle to the context for the duration of the request.
//
// It expects the auth layer to have already verified the bearer token and
// stored the identity via the identity package. A missing or empty tenant
// claim is an authentication failure (401), distinct from tenant-resolution
// failures. On any Acquire error the downstream handler never runs: no
// handler code executes without a valid, correctly-scoped handle.
//
// The borrow is released in a deferred block exactly once, on normal
// completion, on error, and on handler panic (the panic is re-raised after
// release).
func Middleware(manager *Manager, opts ...Option) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		errorHandler: defaultErrorHandler,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			id, ok := identity.FromContext(r.Context())
			if !ok || id.TenantID == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if cfg.checker != nil {
				if err := cfg.checker.Allow(id.Role, cfg.capability); err != nil {
					cfg.logger.WarnContext(r.Context(), "tenant capability denied",
						slog.String("tenant_id", id.TenantID),
						slog.String("role", id.Role),
						slog.Any("error", err),
					)
					cfg.errorHandler(w, r, err)
					return
				}
			}

			borrowed, err := manager.Acquire(r.Context(), id.TenantID)
			if err != nil {
				cfg.logger.ErrorContext(r.Context(), "tenant resolution failed",
					slog.String("tenant_id", id.TenantID),
					slog.Any("error", err),
				)
				cfg.errorHandler(w, r, err)
				return
			}
			defer borrowed.Release()

			ctx := withBorrow(r.Context(), borrowed)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireConn guards routes that must run with a resolved tenant
// connection, catching misordered middleware chains early.
func RequireConn(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := ConnFromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoConnInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
