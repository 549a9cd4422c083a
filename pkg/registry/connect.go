package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds control-plane connection settings. A broken control-plane
// connection is fatal at startup: without the registry no tenant can be
// routed, so Connect failures should abort the process rather than degrade.
type Config struct {
	ConnectionString  string        `env:"REGISTRY_DB_URL,required"`
	MaxOpenConns      int32         `env:"REGISTRY_DB_MAX_OPEN_CONNS" envDefault:"10"`
	MinIdleConns      int32         `env:"REGISTRY_DB_MIN_IDLE_CONNS" envDefault:"2"`
	HealthCheckPeriod time.Duration `env:"REGISTRY_DB_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"REGISTRY_DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"REGISTRY_DB_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"REGISTRY_DB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"REGISTRY_DB_RETRY_INTERVAL" envDefault:"5s"`
}

// Connect establishes the control-plane pool with linear backoff between
// attempts, so simultaneous service restarts do not hammer the registry.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConfig, err)
	}
	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MinIdleConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}

		// A ping catches auth and permission problems that pool
		// construction alone does not surface.
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
			continue
		}

		return pool, nil
	}

	return nil, ErrFailedToConnect
}

// Healthcheck adapts a control-plane pool to the func(ctx) error shape
// health endpoints expect.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
