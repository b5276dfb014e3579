package storefront

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookbay-storefront/internal/credential"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/lifecycle"
	"bookbay-storefront/internal/persist"
	"bookbay-storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRecords struct{ *persist.Memory }

func (failingRecords) Save(context.Context, string, map[string]string, time.Duration) error {
	return errors.New("storage full")
}

func newRegistry(t *testing.T) (*Registry, *testutil.MockAPI, *events.Bus) {
	t.Helper()
	api := testutil.NewMockAPI()
	bus := events.NewBus("test")
	r := NewRegistry(api, persist.NewMemory(), bus, Options{TTL: time.Hour})
	t.Cleanup(r.Shutdown)
	return r, api, bus
}

func TestResolve_RequiresToken(t *testing.T) {
	r, _, _ := newRegistry(t)

	_, err := r.Resolve(context.Background(), domain.CookiePair{Role: "buyer"})

	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_RejectedPairLeavesNoWorkspace(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		pair domain.CookiePair
	}{
		{"unknown role", domain.CookiePair{Token: "forged", Role: "admin"}},
		{"token without role", domain.CookiePair{Token: "forged"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.pair)

			assert.Error(t, err)
			_, ok := r.Get(credential.SessionKey(tt.pair.Token))
			assert.False(t, ok)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestResolve_RejectedPairKeepsLiveWorkspace(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	_, err := r.Open(ctx, "tok", testutil.NewTestUser())
	require.NoError(t, err)

	_, err = r.Resolve(ctx, domain.CookiePair{Token: "tok", Role: "admin"})

	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestOpenThenResolve(t *testing.T) {
	r, _, bus := newRegistry(t)
	ctx := context.Background()
	var established []events.Event
	bus.Subscribe(events.SessionEstablished, func(_ context.Context, e events.Event) {
		established = append(established, e)
	})
	user := testutil.NewTestUser(testutil.AsSeller())

	opened, err := r.Open(ctx, "tok", user)
	require.NoError(t, err)

	resolved, err := r.Resolve(ctx, domain.CookiePair{Token: "tok", Role: "seller"})
	require.NoError(t, err)
	assert.Same(t, opened, resolved)
	assert.Equal(t, credential.SessionKey("tok"), resolved.Key)
	assert.Equal(t, "tok", resolved.Token())

	require.Len(t, established, 1)
	assert.Equal(t, resolved.Key, established[0].Session)
	assert.Equal(t, domain.RoleSeller, established[0].Role)
}

func TestOpen_FailureLeavesNoWorkspace(t *testing.T) {
	bus := events.NewBus("test")
	r := NewRegistry(testutil.NewMockAPI(), failingRecords{persist.NewMemory()}, bus, Options{})
	t.Cleanup(r.Shutdown)

	_, err := r.Open(context.Background(), "tok", testutil.NewTestUser())

	require.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_RestoresAfterRestart(t *testing.T) {
	records := persist.NewMemory()
	ctx := context.Background()
	user := testutil.NewTestUser(testutil.WithName("Ada"))

	before := NewRegistry(testutil.NewMockAPI(), records, events.NewBus("a"), Options{})
	_, err := before.Open(ctx, "tok", user)
	require.NoError(t, err)
	before.Shutdown()

	after := NewRegistry(testutil.NewMockAPI(), records, events.NewBus("b"), Options{})
	t.Cleanup(after.Shutdown)

	ws, err := after.Resolve(ctx, domain.CookiePair{Token: "tok", Role: "buyer"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", ws.State().Session.User.Name)
}

func TestClose(t *testing.T) {
	r, _, bus := newRegistry(t)
	ctx := context.Background()
	var cleared []string
	bus.Subscribe(events.SessionCleared, func(_ context.Context, e events.Event) {
		cleared = append(cleared, e.Session)
	})

	ws, err := r.Open(ctx, "tok", testutil.NewTestUser())
	require.NoError(t, err)
	_, err = ws.Catalog.List(ctx, ws.Token())
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx, ws))

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []string{ws.Key}, cleared)
	assert.False(t, ws.Credential.Session().Authenticated)
	assert.Equal(t, lifecycle.StatusIdle, ws.Catalog.Snapshot().Status)
}

func TestProfileEditReachesCredentialCopy(t *testing.T) {
	r, api, _ := newRegistry(t)
	ctx := context.Background()
	user := testutil.NewTestUser(testutil.WithName("Ada"))
	api.AddAccount("tok", user)

	ws, err := r.Open(ctx, "tok", user)
	require.NoError(t, err)

	_, err = ws.Profile.EditProfile(ctx, ws.Token(), domain.ProfileInput{Name: "Ada L."}, nil)
	require.NoError(t, err)

	state := ws.State()
	assert.Equal(t, "Ada L.", state.Profile.User.Name)
	assert.Equal(t, "Ada L.", state.Session.User.Name)
}

func TestRelayedSessionClearedDropsWorkspace(t *testing.T) {
	r, _, bus := newRegistry(t)
	ctx := context.Background()

	ws, err := r.Open(ctx, "tok", testutil.NewTestUser())
	require.NoError(t, err)

	bus.Deliver(ctx, events.Event{ID: "e1", Kind: events.SessionCleared, Session: ws.Key, Origin: "other-node"})

	_, ok := r.Get(ws.Key)
	assert.False(t, ok)
	assert.False(t, ws.Credential.Session().Authenticated)
}

func TestOnTransition(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []lifecycle.Transition
	)
	r.OnTransition(func(key string, tr lifecycle.Transition) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	})

	ws, err := r.Open(ctx, "tok", testutil.NewTestUser())
	require.NoError(t, err)
	_, err = ws.Catalog.List(ctx, ws.Token())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "catalog", got[0].Store)
	assert.Equal(t, lifecycle.StatusPending, got[0].State.Status)
	assert.Equal(t, lifecycle.StatusFulfilled, got[1].State.Status)
}

func TestExpiry(t *testing.T) {
	bus := events.NewBus("test")
	r := NewRegistry(testutil.NewMockAPI(), persist.NewMemory(), bus, Options{TTL: 50 * time.Millisecond})
	t.Cleanup(r.Shutdown)

	ws, err := r.Open(context.Background(), "tok", testutil.NewTestUser())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := r.Get(ws.Key)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(domain.ErrNotAuthenticated))
	assert.True(t, IsAuthError(domain.ErrInvalidRole))
	assert.False(t, IsAuthError(errors.New("boom")))
}
