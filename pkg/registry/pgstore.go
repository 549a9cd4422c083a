package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads tenant descriptors from a Postgres control plane.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an established control-plane pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const fetchByIDQuery = `
SELECT id, slug, db_host, db_port, db_user, db_password, db_name, db_ssl_mode, active, version, updated_at
FROM tenants
WHERE id = $1`

const fetchBySlugQuery = `
SELECT id, slug, db_host, db_port, db_user, db_password, db_name, db_ssl_mode, active, version, updated_at
FROM tenants
WHERE slug = $1`

// FetchDescriptor implements Store. Identifiers that parse as UUIDs are
// looked up by primary key, anything else by slug, so both token claim
// formats used across the platform resolve to the same record.
func (s *PostgresStore) FetchDescriptor(ctx context.Context, tenantID string) (*TenantDescriptor, error) {
	if tenantID == "" {
		return nil, ErrInvalidIdentifier
	}

	query := fetchBySlugQuery
	if _, err := uuid.Parse(tenantID); err == nil {
		query = fetchByIDQuery
	}

	var d TenantDescriptor
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&d.ID,
		&d.Slug,
		&d.Target.Host,
		&d.Target.Port,
		&d.Target.User,
		&d.Target.Password,
		&d.Target.Database,
		&d.Target.SSLMode,
		&d.Active,
		&d.Version,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, errors.Join(ErrRegistryUnavailable, err)
	}

	return &d, nil
}
