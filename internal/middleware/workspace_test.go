package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/persist"
	"bookbay-storefront/internal/sessioncookie"
	"bookbay-storefront/internal/storefront"
	"bookbay-storefront/internal/testutil"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *storefront.Registry {
	t.Helper()
	r := storefront.NewRegistry(testutil.NewMockAPI(), persist.NewMemory(), events.NewBus("test"), storefront.Options{TTL: time.Hour})
	t.Cleanup(r.Shutdown)
	return r
}

func captureWorkspace(got **storefront.Workspace) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = GetWorkspace(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestWorkspace_AttachesResolvedWorkspace(t *testing.T) {
	registry := newRegistry(t)
	opened, err := registry.Open(context.Background(), "tok", testutil.NewTestUser())
	require.NoError(t, err)

	var got *storefront.Workspace
	h := Workspace(registry, sessioncookie.NewBridge(sessioncookie.Options{}))(captureWorkspace(&got))

	req := testutil.WithSession(httptest.NewRequest(http.MethodGet, "/books", nil), "tok", "buyer")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Same(t, opened, got)
}

func TestWorkspace_NoCookiePassesThrough(t *testing.T) {
	registry := newRegistry(t)
	var got *storefront.Workspace
	h := Workspace(registry, sessioncookie.NewBridge(sessioncookie.Options{}))(captureWorkspace(&got))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got)
	assert.Equal(t, 0, registry.Len())
}

func TestWorkspace_UnresolvableCookiePassesThrough(t *testing.T) {
	registry := newRegistry(t)
	var got *storefront.Workspace
	h := Workspace(registry, sessioncookie.NewBridge(sessioncookie.Options{}))(captureWorkspace(&got))

	req := testutil.WithSession(httptest.NewRequest(http.MethodGet, "/books", nil), "tok", "admin")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got)
}

func TestWorkspace_AdoptsCookieWithoutRecord(t *testing.T) {
	registry := newRegistry(t)
	var got *storefront.Workspace
	h := Workspace(registry, sessioncookie.NewBridge(sessioncookie.Options{}))(captureWorkspace(&got))

	req := testutil.WithSession(httptest.NewRequest(http.MethodGet, "/books", nil), "fresh-token", "seller")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "fresh-token", got.Token())
}

func TestRequireWorkspace(t *testing.T) {
	h := RequireWorkspace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/state", nil))
	testutil.AssertJSONError(t, w, http.StatusUnauthorized, "Not authenticated")

	req := httptest.NewRequest(http.MethodGet, "/ws/state", nil)
	req = req.WithContext(WithWorkspace(req.Context(), &storefront.Workspace{Key: "k"}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestLogging_CopiesRequestID(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, RequestLogging)
	var id string
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		id = chimw.GetReqID(r.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, id)
}
