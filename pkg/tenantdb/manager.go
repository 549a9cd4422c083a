package tenantdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tallyhq/tally/pkg/registry"
)

// entryState is the lifecycle of one cached handle.
type entryState int

const (
	stateInitializing entryState = iota
	stateReady
	stateClosing
)

// entry is the cache record for one tenant. All fields except tenantID,
// descriptorVersion and handle (which are written once before publication)
// are guarded by the manager's mutex.
type entry struct {
	tenantID          string
	handle            Handle
	state             entryState
	refCount          int
	lastUsedAt        time.Time
	descriptorVersion int64
}

// Manager owns every live tenant database handle in the process.
//
// It maintains at most one entry per tenant (no duplicate pools against the
// same tenant database), builds entries on demand with single-flight
// coordination so concurrent cold acquires collapse into one registry fetch
// and one dial, bounds the number of open handles with LRU eviction, and
// reference-counts borrows so a handle is never closed out from under an
// in-flight request.
//
// One mutex guards the map and all entry state. Network I/O (registry
// fetches, pool construction) always happens outside the lock, so lock hold
// time stays O(1).
type Manager struct {
	cfg     Config
	store   registry.Store
	factory Factory
	log     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// releaseCh is closed and replaced whenever a borrow is released or an
	// entry is removed; capacity and shutdown waiters select on it.
	releaseCh chan struct{}

	group singleflight.Group

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger. Defaults to slog.Default.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a Manager and starts its eviction sweep. Call Shutdown
// to stop it and drain all handles.
func NewManager(cfg Config, store registry.Store, factory Factory, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg.withDefaults(),
		store:     store,
		factory:   factory,
		log:       slog.Default(),
		entries:   make(map[string]*entry),
		releaseCh: make(chan struct{}),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweepLoop()

	return m
}

// Acquire returns a borrowed handle for the tenant's database.
//
// Ready cache hits increment the refcount and return without blocking on
// I/O. Cache misses perform a single-flight build: of N concurrent callers
// for the same absent tenant, exactly one fetches the descriptor and dials;
// the rest wait for that outcome. If the caller's context carries no
// deadline, AcquireTimeout applies. A waiter whose deadline elapses gets
// ErrAcquireTimeout and detaches; the build keeps running for the others.
func (m *Manager) Acquire(ctx context.Context, tenantID string) (*Borrowed, error) {
	if tenantID == "" {
		return nil, registry.ErrInvalidIdentifier
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrShuttingDown
		}
		if e, ok := m.entries[tenantID]; ok && e.state == stateReady {
			e.refCount++
			e.lastUsedAt = time.Now()
			m.mu.Unlock()
			return &Borrowed{mgr: m, ent: e}, nil
		}
		m.mu.Unlock()

		ch := m.group.DoChan(tenantID, func() (any, error) {
			return m.buildEntry(tenantID)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				if errors.Is(res.Err, errBuildInvalidated) {
					continue
				}
				return nil, res.Err
			}
			built := res.Val.(*entry)

			m.mu.Lock()
			if cur, ok := m.entries[tenantID]; ok && cur == built && cur.state == stateReady {
				cur.refCount++
				cur.lastUsedAt = time.Now()
				m.mu.Unlock()
				return &Borrowed{mgr: m, ent: cur}, nil
			}
			m.mu.Unlock()
			// Invalidated between publication and our pickup; rebuild.

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrAcquireTimeout
			}
			return nil, ctx.Err()
		}
	}
}

// buildEntry runs inside the single-flight group, detached from any one
// caller's context so a waiter timing out does not cancel the build other
// waiters still need.
func (m *Manager) buildEntry(tenantID string) (*entry, error) {
	desc, err := m.fetchDescriptor(tenantID)
	if err != nil {
		return nil, err
	}
	if !desc.Active {
		return nil, ErrTenantInactive
	}

	e, err := m.reserveSlot(tenantID, desc)
	if err != nil {
		return nil, err
	}
	if e.state == stateReady {
		// An entry with the current descriptor version was already live.
		return e, nil
	}

	handle, err := m.factory.Build(context.Background(), desc)
	if err != nil {
		m.discard(e, nil)
		m.log.Warn("tenant connection build failed",
			slog.String("tenant_id", tenantID),
			slog.String("target", desc.Target.Redacted()),
			slog.Any("error", err),
		)
		return nil, err
	}

	// Recheck activation: the tenant may have been deactivated during the
	// dial, and a deactivated tenant must never get a published handle.
	fresh, err := m.fetchDescriptor(tenantID)
	if err != nil {
		m.discard(e, handle)
		return nil, err
	}
	if !fresh.Active {
		m.discard(e, handle)
		return nil, ErrTenantInactive
	}

	m.mu.Lock()
	if m.closed || m.entries[tenantID] != e {
		// Shutdown or Invalidate raced the build; never publish.
		closed := m.closed
		m.mu.Unlock()
		handle.Close()
		if closed {
			return nil, ErrShuttingDown
		}
		return nil, errBuildInvalidated
	}
	e.handle = handle
	e.state = stateReady
	e.descriptorVersion = fresh.Version
	e.lastUsedAt = time.Now()
	m.mu.Unlock()

	m.log.Info("tenant connection ready",
		slog.String("tenant_id", tenantID),
		slog.String("target", fresh.Target.Redacted()),
		slog.Int64("descriptor_version", fresh.Version),
	)

	return e, nil
}

func (m *Manager) fetchDescriptor(tenantID string) (*registry.TenantDescriptor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	return m.store.FetchDescriptor(ctx, tenantID)
}

// reserveSlot places an Initializing entry in the map under the caller's
// identifier, evicting or waiting for capacity as configured. It may
// instead return an existing Ready entry whose descriptor version is
// current.
func (m *Manager) reserveSlot(tenantID string, desc *registry.TenantDescriptor) (*entry, error) {
	waitCtx, cancel := context.WithTimeout(context.Background(), m.cfg.AcquireTimeout)
	defer cancel()

	for {
		var toClose Handle

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrShuttingDown
		}

		if old, ok := m.entries[tenantID]; ok {
			if old.state == stateReady && old.descriptorVersion == desc.Version {
				m.mu.Unlock()
				return old, nil
			}
			// Stale version or mid-close leftovers: detach, close on drain.
			toClose = m.detachLocked(tenantID, old)
		}

		if len(m.entries) < m.cfg.MaxOpenTenantConnections {
			e := &entry{
				tenantID:          tenantID,
				state:             stateInitializing,
				descriptorVersion: desc.Version,
				lastUsedAt:        time.Now(),
			}
			m.entries[tenantID] = e
			m.mu.Unlock()
			if toClose != nil {
				toClose.Close()
			}
			return e, nil
		}

		if victim := m.lruIdleLocked(); victim != nil {
			evicted := m.detachLocked(victim.tenantID, victim)
			m.mu.Unlock()
			if toClose != nil {
				toClose.Close()
			}
			if evicted != nil {
				evicted.Close()
			}
			m.log.Debug("evicted idle tenant connection for capacity",
				slog.String("tenant_id", victim.tenantID),
			)
			continue
		}

		if !m.cfg.WaitOnCapacity {
			m.mu.Unlock()
			if toClose != nil {
				toClose.Close()
			}
			return nil, ErrCapacityExceeded
		}

		ch := m.releaseCh
		m.mu.Unlock()
		if toClose != nil {
			toClose.Close()
		}

		select {
		case <-ch:
		case <-waitCtx.Done():
			return nil, ErrCapacityExceeded
		}
	}
}

// lruIdleLocked returns the least-recently-used Ready entry with no
// borrows, or nil when everything is busy.
func (m *Manager) lruIdleLocked() *entry {
	var victim *entry
	for _, e := range m.entries {
		if e.state != stateReady || e.refCount != 0 {
			continue
		}
		if victim == nil || e.lastUsedAt.Before(victim.lastUsedAt) {
			victim = e
		}
	}
	return victim
}

// detachLocked removes the entry from the map and marks it Closing. It
// returns the handle to close if no borrows remain; with borrows
// outstanding, the last release closes it (lazy close-on-drain).
func (m *Manager) detachLocked(tenantID string, e *entry) Handle {
	if cur, ok := m.entries[tenantID]; ok && cur == e {
		delete(m.entries, tenantID)
	}
	e.state = stateClosing
	m.notifyLocked()
	if e.refCount == 0 {
		h := e.handle
		e.handle = nil
		return h
	}
	return nil
}

// discard removes a never-published entry after a failed build so the next
// Acquire retries cleanly, closing the half-built handle if there is one.
func (m *Manager) discard(e *entry, handle Handle) {
	m.mu.Lock()
	if cur, ok := m.entries[e.tenantID]; ok && cur == e {
		delete(m.entries, e.tenantID)
	}
	m.notifyLocked()
	m.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
}

// release is called by Borrowed.Release exactly once per borrow.
func (m *Manager) release(e *entry) {
	var toClose Handle

	m.mu.Lock()
	e.refCount--
	if e.refCount < 0 {
		m.mu.Unlock()
		panic("tenantdb: refcount below zero, release without matching acquire")
	}
	e.lastUsedAt = time.Now()
	if e.refCount == 0 && e.state == stateClosing {
		toClose = e.handle
		e.handle = nil
	}
	m.notifyLocked()
	m.mu.Unlock()

	if toClose != nil {
		toClose.Close()
		m.log.Debug("closed drained tenant connection", slog.String("tenant_id", e.tenantID))
	}
}

// Invalidate forces the next Acquire for the tenant to rebuild from a fresh
// descriptor. Used on descriptor version bumps and explicit deactivation.
// With borrows outstanding the close is deferred to the last Release.
// Calling Invalidate repeatedly is safe; later calls are no-ops.
func (m *Manager) Invalidate(tenantID string) {
	m.group.Forget(tenantID)

	var toClose Handle
	m.mu.Lock()
	if e, ok := m.entries[tenantID]; ok {
		toClose = m.detachLocked(tenantID, e)
	}
	m.mu.Unlock()

	if toClose != nil {
		toClose.Close()
	}
	m.log.Info("tenant connection invalidated", slog.String("tenant_id", tenantID))
}

// Shutdown drains the manager: new acquires fail with ErrShuttingDown,
// outstanding borrows get until the context deadline (or ShutdownTimeout)
// to release, then every entry is closed. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopSweep)
	<-m.sweepDone

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	var timedOut bool

drain:
	for {
		m.mu.Lock()
		busy := 0
		for _, e := range m.entries {
			if e.refCount > 0 {
				busy++
			}
		}
		if busy == 0 {
			m.mu.Unlock()
			break drain
		}
		ch := m.releaseCh
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			timedOut = true
			break drain
		}
	}

	m.mu.Lock()
	handles := make([]Handle, 0, len(m.entries))
	for _, e := range m.entries {
		e.state = stateClosing
		if e.handle != nil {
			handles = append(handles, e.handle)
			e.handle = nil
		}
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}

	if timedOut {
		m.log.Error("shutdown drain timed out, force-closed tenant connections",
			slog.Int("closed", len(handles)),
		)
		return ErrShutdownTimeout
	}

	m.log.Info("tenant connection manager shut down", slog.Int("closed", len(handles)))
	return nil
}

// Len reports the number of cached entries, including ones still
// initializing.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// notifyLocked wakes capacity and shutdown waiters. Callers hold m.mu.
func (m *Manager) notifyLocked() {
	close(m.releaseCh)
	m.releaseCh = make(chan struct{})
}

// sweepLoop closes entries idle longer than IdleTTL.
func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)

	ticker := time.NewTicker(m.cfg.EvictionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepIdle()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	var toClose []Handle
	var swept []string

	m.mu.Lock()
	for id, e := range m.entries {
		if e.state != stateReady || e.refCount != 0 {
			continue
		}
		if now.Sub(e.lastUsedAt) < m.cfg.IdleTTL {
			continue
		}
		if h := m.detachLocked(id, e); h != nil {
			toClose = append(toClose, h)
			swept = append(swept, id)
		}
	}
	m.mu.Unlock()

	for _, h := range toClose {
		h.Close()
	}
	for _, id := range swept {
		m.log.Debug("evicted idle tenant connection", slog.String("tenant_id", id))
	}
}
