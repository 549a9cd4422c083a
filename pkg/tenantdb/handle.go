package tenantdb

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the query surface handlers receive. It deliberately excludes
// Close: closing a handle shared by other in-flight requests for the same
// tenant is the manager's exclusive privilege.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Handle is what a Factory produces: the query surface plus the Close the
// manager uses at end of life.
type Handle interface {
	Conn
	Close()
}

// Borrowed is one request's reference-counted use of a cached handle.
//
// Release must be called exactly once per successful Acquire; the
// middleware does this in a defer. Calling Release twice is a programming
// error and panics. Holding a Borrowed (or its Conn) past Release is
// likewise a contract violation: the handle may be closed at any point
// after the last reference drops.
type Borrowed struct {
	mgr      *Manager
	ent      *entry
	released atomic.Bool
}

// TenantID returns the tenant this borrow is scoped to.
func (b *Borrowed) TenantID() string {
	return b.ent.tenantID
}

// DescriptorVersion returns the registry version the handle was built from.
func (b *Borrowed) DescriptorVersion() int64 {
	return b.ent.descriptorVersion
}

// Conn returns the tenant-scoped query surface.
func (b *Borrowed) Conn() Conn {
	if b.released.Load() {
		panic("tenantdb: Conn called on released borrow")
	}
	return b.ent.handle
}

// Release returns the borrow to the manager. The handle stays cached for
// other requests; it is only closed by eviction or invalidation once no
// borrows remain.
func (b *Borrowed) Release() {
	if !b.released.CompareAndSwap(false, true) {
		panic("tenantdb: borrow released twice")
	}
	b.mgr.release(b.ent)
}
