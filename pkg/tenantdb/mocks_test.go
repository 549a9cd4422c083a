package tenantdb_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tallyhq/tally/pkg/registry"
	"github.com/tallyhq/tally/pkg/tenantdb"
)

// fakeHandle records lifecycle calls; the query surface is inert.
type fakeHandle struct {
	tenantID string
	version  int64
	closed   atomic.Bool
}

func (h *fakeHandle) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (h *fakeHandle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (h *fakeHandle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (h *fakeHandle) Ping(ctx context.Context) error {
	return nil
}

func (h *fakeHandle) Close() {
	h.closed.Store(true)
}

// fakeStore is an in-memory registry keyed by the identifier requests use.
type fakeStore struct {
	mu      sync.Mutex
	tenants map[string]registry.TenantDescriptor
	fetches atomic.Int64
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tenants: make(map[string]registry.TenantDescriptor)}
}

func (s *fakeStore) add(id string, active bool, version int64) registry.TenantDescriptor {
	desc := registry.TenantDescriptor{
		ID:   uuid.New(),
		Slug: id,
		Target: registry.ConnectionTarget{
			Host:     "db-" + id + ".internal",
			Port:     5432,
			User:     id + "_app",
			Password: "secret",
			Database: id,
		},
		Active:    active,
		Version:   version,
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.tenants[id] = desc
	s.mu.Unlock()
	return desc
}

func (s *fakeStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	desc := s.tenants[id]
	desc.Active = active
	desc.Version++
	s.tenants[id] = desc
}

func (s *fakeStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeStore) FetchDescriptor(ctx context.Context, tenantID string) (*registry.TenantDescriptor, error) {
	s.fetches.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	desc, ok := s.tenants[tenantID]
	if !ok {
		return nil, registry.ErrTenantNotFound
	}
	copied := desc
	return &copied, nil
}

// fakeFactory builds fakeHandles, optionally blocking or failing.
type fakeFactory struct {
	mu      sync.Mutex
	builds  atomic.Int64
	err     error
	block   chan struct{} // when set, Build waits for it to close
	handles []*fakeHandle
}

func (f *fakeFactory) Build(ctx context.Context, desc *registry.TenantDescriptor) (tenantdb.Handle, error) {
	f.builds.Add(1)

	f.mu.Lock()
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	h := &fakeHandle{tenantID: desc.Slug, version: desc.Version}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFactory) lastHandle() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func testConfig() tenantdb.Config {
	return tenantdb.Config{
		MaxOpenTenantConnections: 50,
		IdleTTL:                  time.Minute,
		ConnectTimeout:           time.Second,
		AcquireTimeout:           2 * time.Second,
		EvictionSweepInterval:    time.Hour, // sweeps are explicit per test
		ShutdownTimeout:          2 * time.Second,
	}
}

func newTestManager(t *testing.T, cfg tenantdb.Config, store registry.Store, factory tenantdb.Factory) *tenantdb.Manager {
	t.Helper()
	m := tenantdb.NewManager(cfg, store, factory)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}
