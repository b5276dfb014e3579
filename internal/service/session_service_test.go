package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/credential"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/persist"
	"bookbay-storefront/internal/sessioncookie"
	"bookbay-storefront/internal/storefront"
	"bookbay-storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCookies struct {
	*sessioncookie.Bridge
}

func (failingCookies) SetSession(http.ResponseWriter, string, domain.Role) error {
	return sessioncookie.ErrInvalidCookie
}

type fixture struct {
	svc      *SessionService
	api      *testutil.MockAPI
	registry *storefront.Registry
	records  *persist.Memory
	bus      *events.Bus
}

func newFixture(t *testing.T, cookies Cookies) *fixture {
	t.Helper()
	api := testutil.NewMockAPI()
	records := persist.NewMemory()
	bus := events.NewBus("test")
	registry := storefront.NewRegistry(api, records, bus, storefront.Options{TTL: time.Hour})
	t.Cleanup(registry.Shutdown)
	if cookies == nil {
		cookies = sessioncookie.NewBridge(sessioncookie.Options{})
	}
	return &fixture{
		svc:      NewSessionService(api, registry, cookies),
		api:      api,
		registry: registry,
		records:  records,
		bus:      bus,
	}
}

func TestSessionService_Login_Success(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.NewTestUser(testutil.AsSeller())
	f.api.AddAccount("tok-seller", user)
	w := httptest.NewRecorder()

	session, err := f.svc.Login(context.Background(), w, apiclient.Credentials{Email: user.Email, Password: "secret"})

	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.Equal(t, domain.RoleSeller, session.Role)
	assert.Equal(t, "tok-seller", session.Token)
	testutil.AssertCookie(t, w, sessioncookie.TokenCookie, "tok-seller")
	testutil.AssertCookie(t, w, sessioncookie.RoleCookie, "seller")

	_, ok := f.registry.Get(credential.SessionKey("tok-seller"))
	assert.True(t, ok)
	fields, err := f.records.Load(context.Background(), credential.SessionKey("tok-seller"))
	require.NoError(t, err)
	assert.Equal(t, "tok-seller", fields[credential.FieldToken])
}

func TestSessionService_Login_RemoteFailure(t *testing.T) {
	f := newFixture(t, nil)
	w := httptest.NewRecorder()

	_, err := f.svc.Login(context.Background(), w, apiclient.Credentials{Email: "nobody@example.com", Password: "x"})

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	testutil.AssertNoCookie(t, w, sessioncookie.TokenCookie)
	assert.Equal(t, 0, f.registry.Len())
}

func TestSessionService_Login_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		creds apiclient.Credentials
	}{
		{"empty email", apiclient.Credentials{Password: "x"}},
		{"malformed email", apiclient.Credentials{Email: "not-an-email", Password: "x"}},
		{"empty password", apiclient.Credentials{Email: "a@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), httptest.NewRecorder(), tt.creds)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, f.api.CallCount("login"))
}

func TestSessionService_Login_RejectsUnknownRole(t *testing.T) {
	f := newFixture(t, nil)
	f.api.AddAccount("tok", domain.UserRef{ID: "u1", Email: "admin@example.com", Role: "admin"})
	w := httptest.NewRecorder()

	_, err := f.svc.Login(context.Background(), w, apiclient.Credentials{Email: "admin@example.com", Password: "x"})

	assert.ErrorIs(t, err, domain.ErrInvalidRole)
	testutil.AssertNoCookie(t, w, sessioncookie.TokenCookie)
	assert.Equal(t, 0, f.registry.Len())
}

func TestSessionService_Login_MissingToken(t *testing.T) {
	f := newFixture(t, nil)
	f.api.LoginFunc = func(context.Context, apiclient.Credentials) (apiclient.AuthResult, error) {
		return apiclient.AuthResult{User: testutil.NewTestUser()}, nil
	}

	_, err := f.svc.Login(context.Background(), httptest.NewRecorder(), apiclient.Credentials{Email: "a@example.com", Password: "x"})

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestSessionService_Login_CookieFailureRollsBack(t *testing.T) {
	f := newFixture(t, failingCookies{})
	user := testutil.NewTestUser()
	f.api.AddAccount("tok-buyer", user)

	var cleared []events.Event
	f.bus.Subscribe(events.SessionCleared, func(_ context.Context, e events.Event) {
		cleared = append(cleared, e)
	})

	_, err := f.svc.Login(context.Background(), httptest.NewRecorder(), apiclient.Credentials{Email: user.Email, Password: "x"})

	require.ErrorIs(t, err, sessioncookie.ErrInvalidCookie)
	assert.Equal(t, 0, f.registry.Len())
	_, err = f.records.Load(context.Background(), credential.SessionKey("tok-buyer"))
	assert.ErrorIs(t, err, persist.ErrNotFound)
	assert.Len(t, cleared, 1)
}

func TestSessionService_Register(t *testing.T) {
	f := newFixture(t, nil)
	w := httptest.NewRecorder()

	session, err := f.svc.Register(context.Background(), w, apiclient.Registration{
		Name:     "  Ada  ",
		Email:    "ada@example.com",
		Password: "Str0ng!pass",
		Role:     "Seller",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, session.Role)
	require.NotNil(t, session.User)
	assert.Equal(t, "Ada", session.User.Name)
	testutil.AssertCookie(t, w, sessioncookie.RoleCookie, "seller")
}

func TestSessionService_Register_Validation(t *testing.T) {
	f := newFixture(t, nil)
	valid := apiclient.Registration{Name: "Ada", Email: "ada@example.com", Password: "Str0ng!pass", Role: domain.RoleBuyer}

	tests := []struct {
		name   string
		mutate func(*apiclient.Registration)
	}{
		{"missing name", func(r *apiclient.Registration) { r.Name = " " }},
		{"bad email", func(r *apiclient.Registration) { r.Email = "ada" }},
		{"short password", func(r *apiclient.Registration) { r.Password = "S0!a" }},
		{"no uppercase", func(r *apiclient.Registration) { r.Password = "str0ng!pass" }},
		{"no lowercase", func(r *apiclient.Registration) { r.Password = "STR0NG!PASS" }},
		{"no digit", func(r *apiclient.Registration) { r.Password = "Strong!pass" }},
		{"no special", func(r *apiclient.Registration) { r.Password = "Str0ngpass" }},
		{"bad role", func(r *apiclient.Registration) { r.Role = "admin" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := valid
			tt.mutate(&reg)
			_, err := f.svc.Register(context.Background(), httptest.NewRecorder(), reg)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, f.api.CallCount("register"))
}

func TestSessionService_Logout(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.NewTestUser()
	f.api.AddAccount("tok", user)
	ctx := context.Background()
	_, err := f.svc.Login(ctx, httptest.NewRecorder(), apiclient.Credentials{Email: user.Email, Password: "x"})
	require.NoError(t, err)
	ws, ok := f.registry.Get(credential.SessionKey("tok"))
	require.True(t, ok)

	w := httptest.NewRecorder()
	require.NoError(t, f.svc.Logout(ctx, w, ws))

	testutil.AssertClearedCookie(t, w, sessioncookie.TokenCookie)
	testutil.AssertClearedCookie(t, w, sessioncookie.RoleCookie)
	assert.Equal(t, 0, f.registry.Len())
	assert.False(t, ws.Credential.Session().Authenticated)
}

func TestSessionService_Logout_WithoutWorkspace(t *testing.T) {
	f := newFixture(t, nil)
	w := httptest.NewRecorder()

	require.NoError(t, f.svc.Logout(context.Background(), w, nil))

	testutil.AssertClearedCookie(t, w, sessioncookie.TokenCookie)
}

func TestSessionService_SetCookies(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("valid pair", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, f.svc.SetCookies(w, "tok", "BUYER"))
		testutil.AssertCookie(t, w, sessioncookie.TokenCookie, "tok")
		testutil.AssertCookie(t, w, sessioncookie.RoleCookie, "buyer")
	})

	t.Run("half pair", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := f.svc.SetCookies(w, "tok", "")
		assert.ErrorIs(t, err, domain.ErrInconsistentSession)
		testutil.AssertNoCookie(t, w, sessioncookie.TokenCookie)
	})

	t.Run("unknown role", func(t *testing.T) {
		err := f.svc.SetCookies(httptest.NewRecorder(), "tok", "admin")
		assert.True(t, errors.Is(err, domain.ErrInvalidRole))
	})
}
