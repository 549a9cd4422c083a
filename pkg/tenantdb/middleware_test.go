package tenantdb_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/identity"
	"github.com/tallyhq/tally/pkg/registry"
	"github.com/tallyhq/tally/pkg/tenantdb"
)

// identityInjector is a stand-in for the auth layer: it stores a verified
// identity in the context the way the real token middleware does.
func identityInjector(id identity.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

func newTestRouter(m *tenantdb.Manager, id identity.Identity, handler http.HandlerFunc, opts ...tenantdb.Option) *chi.Mux {
	r := chi.NewRouter()
	r.Use(identityInjector(id))
	r.Use(tenantdb.Middleware(m, opts...))
	r.Get("/projects", handler)
	return r
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("attaches tenant connection and releases after request", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.add("acme", true, 1)
		factory := &fakeFactory{}
		m := newTestManager(t, testConfig(), store, factory)

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "acme", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				conn, ok := tenantdb.ConnFromContext(r.Context())
				require.True(t, ok)
				require.NotNil(t, conn)

				id, ok := tenantdb.TenantIDFromContext(r.Context())
				require.True(t, ok)
				assert.Equal(t, "acme", id)
				w.WriteHeader(http.StatusOK)
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		require.Equal(t, http.StatusOK, w.Code)

		// The borrow was released: invalidation closes the handle at once
		// instead of deferring to a drain.
		m.Invalidate("acme")
		assert.True(t, factory.lastHandle().closed.Load())
	})

	t.Run("missing identity is an authentication failure", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		r := chi.NewRouter()
		r.Use(tenantdb.Middleware(m))
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run without identity")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("empty tenant claim is an authentication failure", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		router := newTestRouter(m, identity.Identity{UserID: "u1"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown and inactive tenants are indistinguishable", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.add("dormant", false, 1)
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		response := func(tenantID string) *httptest.ResponseRecorder {
			router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: tenantID, Role: "member"},
				func(w http.ResponseWriter, r *http.Request) {
					t.Error("handler must not run")
				})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
			return w
		}

		ghost := response("ghost")
		dormant := response("dormant")

		assert.Equal(t, http.StatusNotFound, ghost.Code)
		assert.Equal(t, ghost.Code, dormant.Code)
		assert.Equal(t, ghost.Body.String(), dormant.Body.String(),
			"responses must not leak which tenant ids exist")
	})

	t.Run("registry outage maps to 503", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.setErr(registry.ErrRegistryUnavailable)
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "acme", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("capacity exhaustion maps to 503 with retry hint", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.MaxOpenTenantConnections = 1
		store := newFakeStore()
		store.add("a", true, 1)
		store.add("b", true, 1)
		m := newTestManager(t, cfg, store, &fakeFactory{})

		held, err := m.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer held.Release()

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "b", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("acquire deadline maps to 504", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.AcquireTimeout = 30 * time.Millisecond
		store := newFakeStore()
		store.add("slow", true, 1)
		factory := &fakeFactory{}
		factory.block = make(chan struct{})
		defer close(factory.block)
		m := newTestManager(t, cfg, store, factory)

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "slow", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})

	t.Run("shutdown maps to 503", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.add("acme", true, 1)
		m := tenantdb.NewManager(testConfig(), store, &fakeFactory{})
		require.NoError(t, m.Shutdown(context.Background()))

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "acme", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("releases borrow when handler panics", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.add("acme", true, 1)
		factory := &fakeFactory{}
		m := newTestManager(t, testConfig(), store, factory)

		r := chi.NewRouter()
		r.Use(chimw.Recoverer)
		r.Use(identityInjector(identity.Identity{UserID: "u1", TenantID: "acme", Role: "member"}))
		r.Use(tenantdb.Middleware(m))
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			panic("handler exploded")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		// Release still happened: the idle handle closes immediately.
		m.Invalidate("acme")
		assert.True(t, factory.lastHandle().closed.Load())
	})

	t.Run("capability check runs before acquire", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		store.add("acme", true, 1)
		factory := &fakeFactory{}
		m := newTestManager(t, testConfig(), store, factory)

		checker := identity.NewStaticChecker(map[string][]string{
			"member": {"tenant.read"},
		})

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "acme", Role: "guest"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			},
			tenantdb.WithCapabilityCheck(checker, "tenant.read"),
		)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Zero(t, factory.builds.Load(), "denied requests must not consume a connection")
	})

	t.Run("skip paths bypass resolution", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		r := chi.NewRouter()
		r.Use(tenantdb.Middleware(m, tenantdb.WithSkipPaths([]string{"/health"})))
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, ok := tenantdb.ConnFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("custom error handler overrides mapping", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		m := newTestManager(t, testConfig(), store, &fakeFactory{})

		router := newTestRouter(m, identity.Identity{UserID: "u1", TenantID: "ghost", Role: "member"},
			func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not run")
			},
			tenantdb.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				w.WriteHeader(http.StatusTeapot)
			}),
		)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestRequireConn(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without a resolved connection", func(t *testing.T) {
		t.Parallel()

		r := chi.NewRouter()
		r.Use(tenantdb.RequireConn(nil))
		r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/projects", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestMustConnFromContext(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		tenantdb.MustConnFromContext(context.Background())
	})
}
