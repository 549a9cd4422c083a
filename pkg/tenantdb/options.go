package tenantdb

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tallyhq/tally/pkg/identity"
	"github.com/tallyhq/tally/pkg/registry"
)

// ErrorHandler maps tenant resolution failures to HTTP responses.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// middlewareConfig holds middleware configuration.
type middlewareConfig struct {
	errorHandler ErrorHandler
	skipPaths    []string
	checker      identity.Checker
	capability   string
	logger       *slog.Logger
}

// Option configures the middleware.
type Option func(*middlewareConfig)

// WithErrorHandler replaces the default error-to-status mapping.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *middlewareConfig) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution entirely
// (health endpoints, public assets).
func WithSkipPaths(paths []string) Option {
	return func(c *middlewareConfig) {
		c.skipPaths = paths
	}
}

// WithCapabilityCheck makes the middleware consult the checker after the
// tenant id is known and before a connection is acquired. Keeping the
// policy decision here, in one place, replaces per-handler role checks.
func WithCapabilityCheck(checker identity.Checker, capability string) Option {
	return func(c *middlewareConfig) {
		c.checker = checker
		c.capability = capability
	}
}

// WithLogger sets the middleware logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *middlewareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// defaultErrorHandler maps the error taxonomy to stable statuses with
// generic bodies. Unknown and inactive tenants are deliberately
// indistinguishable so responses cannot be used to probe which tenant ids
// exist. Detail goes to the server-side log only.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrTenantNotFound),
		errors.Is(err, ErrTenantInactive),
		errors.Is(err, registry.ErrInvalidIdentifier):
		http.Error(w, "Tenant not available", http.StatusNotFound)
	case errors.Is(err, identity.ErrCapabilityDenied),
		errors.Is(err, identity.ErrUnknownRole):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, registry.ErrRegistryUnavailable):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ErrCapacityExceeded):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ErrShuttingDown):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	case IsConnectError(err):
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ErrAcquireTimeout):
		http.Error(w, "Timed out resolving tenant", http.StatusGatewayTimeout)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
