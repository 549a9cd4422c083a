package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ConnectionTarget locates one tenant's database. Credentials live here and
// must never reach logs; use Redacted or rely on LogValue.
type ConnectionTarget struct {
	Host     string `json:"host" bson:"host"`
	Port     int    `json:"port" bson:"port"`
	User     string `json:"user" bson:"user"`
	Password string `json:"-" bson:"password"`
	Database string `json:"database" bson:"database"`
	SSLMode  string `json:"ssl_mode" bson:"ssl_mode"`
}

// DSN builds the full connection string, credentials included.
func (t ConnectionTarget) DSN() string {
	sslMode := t.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(t.User, t.Password),
		Host:     fmt.Sprintf("%s:%d", t.Host, t.Port),
		Path:     t.Database,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

// Redacted returns a loggable locator without credentials.
func (t ConnectionTarget) Redacted() string {
	return fmt.Sprintf("%s:%d/%s", t.Host, t.Port, t.Database)
}

// LogValue makes the target safe when passed to slog directly.
func (t ConnectionTarget) LogValue() slog.Value {
	return slog.StringValue(t.Redacted())
}

// TenantDescriptor is one tenant's registry record: where its database
// lives and whether it may be used. Records are read-only to this
// subsystem; provisioning workflows own writes and bump Version on changes
// so stale pool handles can be detected.
type TenantDescriptor struct {
	ID        uuid.UUID        `json:"id"`
	Slug      string           `json:"slug"`
	Target    ConnectionTarget `json:"target"`
	Active    bool             `json:"active"`
	Version   int64            `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store reads tenant descriptors from the shared control-plane database.
//
// Implementations do no caching and no retries: caching belongs to the
// connection manager, and retry policy belongs to callers. That keeps every
// Store trivially correct and testable.
type Store interface {
	// FetchDescriptor returns the descriptor for a tenant id or slug.
	// The id is assumed already authenticated; only existence is checked.
	// Returns ErrTenantNotFound when no record matches, and an error
	// wrapping ErrRegistryUnavailable when the control-plane store itself
	// cannot be reached.
	FetchDescriptor(ctx context.Context, tenantID string) (*TenantDescriptor, error)
}
