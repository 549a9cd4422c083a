package tenantdb

import "time"

// Config bounds the tenant connection manager. Every open tenant pool costs
// file descriptors and sockets on this process, so the bound is a resource
// safety property, not a tuning knob.
type Config struct {
	// MaxOpenTenantConnections caps live per-tenant pool handles.
	MaxOpenTenantConnections int `env:"TENANTDB_MAX_OPEN_TENANT_CONNECTIONS" envDefault:"50"`

	// IdleTTL is how long an unborrowed handle survives before the sweep
	// closes it.
	IdleTTL time.Duration `env:"TENANTDB_IDLE_TTL" envDefault:"10m"`

	// ConnectTimeout bounds one pool construction attempt against a tenant
	// database.
	ConnectTimeout time.Duration `env:"TENANTDB_CONNECT_TIMEOUT" envDefault:"5s"`

	// AcquireTimeout bounds Acquire when the caller's context carries no
	// deadline of its own.
	AcquireTimeout time.Duration `env:"TENANTDB_ACQUIRE_TIMEOUT" envDefault:"3s"`

	// EvictionSweepInterval is how often the background sweep looks for
	// idle entries.
	EvictionSweepInterval time.Duration `env:"TENANTDB_EVICTION_SWEEP_INTERVAL" envDefault:"30s"`

	// WaitOnCapacity makes uncached acquires wait (deadline-bounded) for a
	// slot instead of failing fast with ErrCapacityExceeded.
	WaitOnCapacity bool `env:"TENANTDB_WAIT_ON_CAPACITY" envDefault:"false"`

	// ShutdownTimeout bounds the drain phase of Shutdown when its context
	// carries no deadline.
	ShutdownTimeout time.Duration `env:"TENANTDB_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// PoolMaxConns and PoolMinConns size each tenant's pgx pool. The
	// manager refcounts logical borrows; physical connections are pooled
	// beneath the handle.
	PoolMaxConns int32 `env:"TENANTDB_POOL_MAX_CONNS" envDefault:"4"`
	PoolMinConns int32 `env:"TENANTDB_POOL_MIN_CONNS" envDefault:"0"`
}

// withDefaults fills zero values so a hand-built Config behaves like an
// env-loaded one.
func (c Config) withDefaults() Config {
	if c.MaxOpenTenantConnections <= 0 {
		c.MaxOpenTenantConnections = 50
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 3 * time.Second
	}
	if c.EvictionSweepInterval <= 0 {
		c.EvictionSweepInterval = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.PoolMaxConns <= 0 {
		c.PoolMaxConns = 4
	}
	return c
}
