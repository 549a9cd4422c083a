// Package tenantdb routes requests to per-tenant databases and owns the
// lifecycle of every tenant connection handle in the process.
//
// Each tenant on the platform has a physically separate database. Given an
// authenticated tenant identity, this package resolves the tenant's
// connection descriptor from the control-plane registry, builds (or reuses)
// a pooled handle for that database, and lends it to the request for
// exactly the request's lifetime. Isolation is the point: a request can
// only ever see the handle built from its own tenant's descriptor, and a
// handler never receives anything it could close or retain.
//
// # Manager
//
// The Manager is the single process-wide owner of tenant handles:
//
//	store := registry.NewPostgresStore(controlPlane)
//	mgr := tenantdb.NewManager(cfg, store, tenantdb.NewPoolFactory(cfg))
//	defer mgr.Shutdown(context.Background())
//
// Acquire is safe for arbitrary concurrency. Cold acquires for the same
// tenant collapse into one registry fetch and one dial (single-flight);
// every concurrent waiter observes that one outcome. Ready hits are O(1)
// and never touch the network. Handles are reference-counted: eviction and
// invalidation close a handle only after the last borrow is released.
//
// The cache is bounded. Beyond MaxOpenTenantConnections the manager evicts
// the least-recently-used idle handle, and when everything is busy it fails
// fast with ErrCapacityExceeded (or waits, with WaitOnCapacity). A
// background sweep closes handles idle longer than IdleTTL.
//
// # Middleware
//
// Middleware ties the manager into the request path:
//
//	r := chi.NewRouter()
//	r.Use(authMiddleware) // populates identity
//	r.Use(tenantdb.Middleware(mgr))
//	r.Get("/invoices", func(w http.ResponseWriter, r *http.Request) {
//		conn := tenantdb.MustConnFromContext(r.Context())
//		rows, err := conn.Query(r.Context(), "SELECT ...")
//		...
//	})
//
// Resolution failures are mapped to stable HTTP statuses with generic
// bodies; unknown and deactivated tenants produce identical responses so
// tenant ids cannot be probed. Connection detail is logged server-side
// only, always with the tenant id and never with credentials.
package tenantdb
