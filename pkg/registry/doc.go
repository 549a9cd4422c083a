// Package registry reads tenant metadata from the shared control-plane
// store.
//
// Every tenant on the platform has its own physically separate database;
// the control plane holds one descriptor per tenant saying where that
// database lives, whether the tenant is active, and a version that bumps
// whenever provisioning rewrites the record. This package is deliberately a
// leaf: it fetches descriptors and nothing else. Caching, retries, and
// pool lifecycle are the tenantdb manager's job.
//
// Two Store implementations are provided, Postgres (the default control
// plane) and MongoDB. Both collapse "no such tenant" into ErrTenantNotFound
// and wrap infrastructure failures with ErrRegistryUnavailable so callers
// can tell the two apart with errors.Is.
//
// Connection targets carry credentials. ConnectionTarget implements
// slog.LogValuer and redacts itself; never log DSN output.
package registry
