package tenantdb

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallyhq/tally/pkg/registry"
)

// Factory constructs a live handle for one tenant's database. Pure
// construction: no caching, no global state. The manager owns everything
// after Build returns.
type Factory interface {
	Build(ctx context.Context, desc *registry.TenantDescriptor) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, desc *registry.TenantDescriptor) (Handle, error)

func (f FactoryFunc) Build(ctx context.Context, desc *registry.TenantDescriptor) (Handle, error) {
	return f(ctx, desc)
}

// PoolFactory builds pgx pools from tenant descriptors. Each Build dials
// and pings the tenant database within the configured connect timeout.
type PoolFactory struct {
	connectTimeout time.Duration
	maxConns       int32
	minConns       int32
}

// NewPoolFactory builds a PoolFactory from the manager config.
func NewPoolFactory(cfg Config) *PoolFactory {
	cfg = cfg.withDefaults()
	return &PoolFactory{
		connectTimeout: cfg.ConnectTimeout,
		maxConns:       cfg.PoolMaxConns,
		minConns:       cfg.PoolMinConns,
	}
}

// Build implements Factory.
func (f *PoolFactory) Build(ctx context.Context, desc *registry.TenantDescriptor) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, f.connectTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(desc.Target.DSN())
	if err != nil {
		return nil, &ConnectError{TenantID: desc.ID.String(), Reason: ReasonUnknown, Err: err}
	}
	poolConfig.MaxConns = f.maxConns
	poolConfig.MinConns = f.minConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, classifyConnectError(desc.ID.String(), err)
	}

	// pgxpool dials lazily; ping to surface unreachable hosts and bad
	// credentials before the handle is published.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyConnectError(desc.ID.String(), err)
	}

	return pool, nil
}

// classifyConnectError folds driver errors into the ConnectError taxonomy.
func classifyConnectError(tenantID string, err error) *ConnectError {
	reason := ReasonUnknown

	var pgErr *pgconn.PgError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = ReasonTimeout
	case errors.As(err, &pgErr) && (pgErr.Code == "28000" || pgErr.Code == "28P01"):
		// invalid_authorization_specification / invalid_password
		reason = ReasonAuthFailed
	case isConnectionRefused(err):
		reason = ReasonRefused
	}

	return &ConnectError{TenantID: tenantID, Reason: reason, Err: err}
}

func isConnectionRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
