package storefront

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bookbay-storefront/internal/catalog"
	"bookbay-storefront/internal/credential"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/lifecycle"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/persist"
	"bookbay-storefront/internal/profile"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 10000
	DefaultTTL  = 24 * time.Hour
)

// API is the remote client used by every workspace.
type API interface {
	catalog.API
	profile.API
}

// Options configures a Registry.
type Options struct {
	// Size caps the number of workspaces held in memory.
	Size int
	// TTL bounds how long an idle workspace is kept.
	TTL time.Duration
	// CredentialTTL is the lifetime of persisted credential records.
	CredentialTTL time.Duration
}

// TransitionFunc receives every lifecycle transition of every workspace.
type TransitionFunc func(key string, tr lifecycle.Transition)

// Registry maps session keys to workspaces.
type Registry struct {
	api     API
	records persist.Store
	bus     *events.Bus
	opts    Options

	mu        sync.Mutex
	cache     *expirable.LRU[string, *Workspace]
	listeners []TransitionFunc
	unsubs    []func()
}

// NewRegistry creates a registry and subscribes it to session events on bus.
func NewRegistry(api API, records persist.Store, bus *events.Bus, opts Options) *Registry {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = opts.TTL
	}

	r := &Registry{
		api:     api,
		records: records,
		bus:     bus,
		opts:    opts,
	}
	r.cache = expirable.NewLRU[string, *Workspace](opts.Size, func(key string, _ *Workspace) {
		observability.WorkspacesActive.Dec()
	}, opts.TTL)

	r.unsubs = append(r.unsubs,
		bus.Subscribe(events.ProfileChanged, r.routeToCredential),
		bus.Subscribe(events.SessionCleared, r.onSessionCleared),
	)
	return r
}

// OnTransition registers fn for the lifecycle transitions of workspaces
// created afterwards.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Resolve returns the workspace for the cookie pair, creating it if needed,
// and re-validates its credential copy against the pair.
func (r *Registry) Resolve(ctx context.Context, pair domain.CookiePair) (*Workspace, error) {
	if !pair.HasToken() {
		return nil, domain.ErrNotAuthenticated
	}

	key := credential.SessionKey(pair.Token)
	_, existed := r.Get(key)
	ws := r.getOrCreate(key)

	session, err := ws.Credential.Sync(ctx, pair)
	if err == nil && !session.Authenticated {
		err = domain.ErrNotAuthenticated
	}
	if err != nil {
		// A pair that never resolved must not take a slot from live sessions.
		if !existed {
			r.cache.Remove(key)
		}
		return nil, err
	}
	return ws, nil
}

// Open establishes a new session and returns its workspace. A failure
// leaves no workspace behind.
func (r *Registry) Open(ctx context.Context, token string, user domain.UserRef) (*Workspace, error) {
	key := credential.SessionKey(token)
	_, existed := r.Get(key)
	ws := r.getOrCreate(key)

	session, err := ws.Credential.Establish(ctx, token, user)
	if err != nil {
		if !existed {
			r.cache.Remove(key)
		}
		return nil, err
	}

	r.bus.Publish(ctx, events.Event{
		Kind:    events.SessionEstablished,
		Session: key,
		Role:    session.Role,
		User:    session.User,
	})
	return ws, nil
}

// Close signs the workspace out, drops it, and announces the sign-out.
func (r *Registry) Close(ctx context.Context, ws *Workspace) error {
	err := ws.Credential.Clear(ctx)
	ws.reset()
	r.cache.Remove(ws.Key)

	r.bus.Publish(ctx, events.Event{Kind: events.SessionCleared, Session: ws.Key})
	return err
}

// Get returns a live workspace without creating one.
func (r *Registry) Get(key string) (*Workspace, bool) {
	return r.cache.Get(key)
}

// Len returns the number of workspaces held.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Shutdown unsubscribes from the bus and drops every workspace.
func (r *Registry) Shutdown() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.cache.Purge()
}

func (r *Registry) getOrCreate(key string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.cache.Get(key); ok {
		return ws
	}

	ws := &Workspace{
		Key:        key,
		Credential: credential.New(r.records, r.opts.CredentialTTL),
		Catalog:    catalog.New(r.api),
		Profile:    profile.New(r.api, r.bus, key),
		Created:    time.Now(),
	}

	listeners := append([]TransitionFunc(nil), r.listeners...)
	forward := func(tr lifecycle.Transition) {
		for _, fn := range listeners {
			fn(key, tr)
		}
	}
	ws.Catalog.Tracker().Observe(forward)
	ws.Profile.Tracker().Observe(forward)

	r.cache.Add(key, ws)
	observability.WorkspacesActive.Inc()
	return ws
}

func (r *Registry) routeToCredential(ctx context.Context, e events.Event) {
	ws, ok := r.Get(e.Session)
	if !ok {
		return
	}
	ws.Credential.HandleEvent(ctx, e)
}

// onSessionCleared drops workspaces signed out elsewhere. The local Close
// already removed its own workspace, so this only matters for relayed events.
func (r *Registry) onSessionCleared(ctx context.Context, e events.Event) {
	ws, ok := r.Get(e.Session)
	if !ok {
		return
	}
	ws.Credential.HandleEvent(ctx, e)
	ws.reset()
	r.cache.Remove(e.Session)
	observability.FromContext(ctx).Info("dropped workspace signed out elsewhere",
		slog.String("session", e.Session),
		slog.String("origin", e.Origin))
}

// IsAuthError reports whether err means the visitor must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, domain.ErrNotAuthenticated) ||
		errors.Is(err, domain.ErrInvalidRole) ||
		errors.Is(err, domain.ErrInconsistentSession)
}
