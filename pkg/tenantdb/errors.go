package tenantdb

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantInactive is returned when the tenant exists but has been
	// deactivated. The middleware maps this and registry.ErrTenantNotFound
	// to the same HTTP status so clients cannot probe which tenant ids
	// exist.
	ErrTenantInactive = errors.New("tenantdb: tenant is inactive")

	// ErrCapacityExceeded is returned when the manager is at its connection
	// bound and no cached entry is idle enough to evict.
	ErrCapacityExceeded = errors.New("tenantdb: tenant connection capacity exceeded")

	// ErrAcquireTimeout is returned when the caller's deadline elapsed
	// while waiting on an in-flight build or on capacity. The build itself
	// keeps running for the remaining waiters.
	ErrAcquireTimeout = errors.New("tenantdb: acquire deadline exceeded")

	// ErrShuttingDown is returned by Acquire once Shutdown has begun.
	ErrShuttingDown = errors.New("tenantdb: manager is shutting down")

	// ErrShutdownTimeout is returned by Shutdown when outstanding borrows
	// did not drain in time; entries are force-closed regardless.
	ErrShutdownTimeout = errors.New("tenantdb: shutdown timed out waiting for borrows to drain")

	// ErrNoConnInContext is returned by RequireConn when a request reaches
	// a tenant-scoped route without a resolved connection.
	ErrNoConnInContext = errors.New("tenantdb: no tenant connection in context")

	// errBuildInvalidated signals that Invalidate raced an in-flight build;
	// waiters retry against a fresh descriptor instead of surfacing it.
	errBuildInvalidated = errors.New("tenantdb: entry invalidated during build")
)

// ConnectReason classifies why a tenant database could not be reached.
type ConnectReason string

const (
	ReasonTimeout    ConnectReason = "timeout"
	ReasonRefused    ConnectReason = "refused"
	ReasonAuthFailed ConnectReason = "auth_failed"
	ReasonUnknown    ConnectReason = "unknown"
)

// ConnectError reports a failed connection attempt against a tenant's
// database. It carries the tenant id for logging but never the credentials.
type ConnectError struct {
	TenantID string
	Reason   ConnectReason
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("tenantdb: connect to tenant %q failed (%s): %v", e.TenantID, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err is (or wraps) a ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
