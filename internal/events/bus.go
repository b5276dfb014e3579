// Package events carries session and profile changes between the stores of
// one workspace and, through a relay, between storefront instances.
package events

import (
	"context"
	"sync"
	"time"

	"bookbay-storefront/internal/domain"

	"github.com/google/uuid"
)

// Kind names an event.
type Kind string

const (
	SessionEstablished Kind = "session.established"
	SessionCleared     Kind = "session.cleared"
	ProfileChanged     Kind = "profile.changed"
)

// Event is a session-scoped change notification. Session is the hashed
// session key, never a raw token.
type Event struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Session string          `json:"session"`
	Role    domain.Role     `json:"role,omitempty"`
	User    *domain.UserRef `json:"user,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	At      time.Time       `json:"at"`
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event)

// Publisher accepts events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Bus delivers events synchronously to subscribers, in subscription order.
type Bus struct {
	origin string

	mu     sync.RWMutex
	nextID int
	byKind map[Kind]map[int]Handler
	all    map[int]Handler
	order  []int
}

// NewBus creates a bus that stamps published events with origin.
func NewBus(origin string) *Bus {
	return &Bus{
		origin: origin,
		byKind: make(map[Kind]map[int]Handler),
		all:    make(map[int]Handler),
	}
}

// Origin returns the instance name stamped on local events.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers h for events of kind and returns a function removing it.
func (b *Bus) Subscribe(kind Kind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.register()
	if b.byKind[kind] == nil {
		b.byKind[kind] = make(map[int]Handler)
	}
	b.byKind[kind][id] = h

	return func() {
		b.mu.Lock()
		delete(b.byKind[kind], id)
		b.unregister(id)
		b.mu.Unlock()
	}
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.register()
	b.all[id] = h

	return func() {
		b.mu.Lock()
		delete(b.all, id)
		b.unregister(id)
		b.mu.Unlock()
	}
}

// Publish fills in ID, time and origin when missing and delivers e.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Origin == "" {
		e.Origin = b.origin
	}
	b.Deliver(ctx, e)
}

// Deliver hands e to subscribers as-is. Relays use it for remote events.
func (b *Bus) Deliver(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.byKind[e.Kind][id]; ok {
			handlers = append(handlers, h)
		} else if h, ok := b.all[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

func (b *Bus) register() int {
	b.nextID++
	b.order = append(b.order, b.nextID)
	return b.nextID
}

func (b *Bus) unregister(id int) {
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
