// Package lifecycle tracks the pending/fulfilled/rejected state of the remote
// operations a store dispatches. Every dispatch is numbered; a completion sets
// the state only when its number is higher than any completion already applied
// to the same store, so a slow, older response can never overwrite a newer one.
// Reads (Fulfill) are dropped entirely when stale. Mutations the remote side
// has committed (Commit) always merge their data; only the state is gated.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bookbay-storefront/internal/observability"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a store.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Op names a store operation.
type Op string

const (
	OpList         Op = "list"
	OpGet          Op = "get"
	OpAdd          Op = "add"
	OpEdit         Op = "edit"
	OpDelete       Op = "delete"
	OpFetchProfile Op = "fetchProfile"
	OpEditProfile  Op = "editProfile"
)

// State is the per-store request state exposed to renderers.
type State struct {
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Op        Op     `json:"op,omitempty"`
	Succeeded bool   `json:"success"`
}

// Ticket identifies one dispatch.
type Ticket struct {
	Seq           uint64
	Op            Op
	CorrelationID string
	Dispatched    time.Time
}

// Transition is delivered to observers after every state change. Stale
// means the state was not updated; Merged means store data changed anyway.
type Transition struct {
	Store  string
	Ticket Ticket
	State  State
	Stale  bool
	Merged bool
}

// Observer receives transitions outside the tracker lock.
type Observer func(Transition)

// Tracker is the lifecycle slot of one store. Its mutex also guards the
// owning store's data: merges run under it, so a merge and its transition
// are observed together.
type Tracker struct {
	store string

	mu         sync.Mutex
	state      State
	dispatched uint64
	applied    uint64
	observers  []Observer
}

// NewTracker creates an idle tracker for the named store.
func NewTracker(store string) *Tracker {
	return &Tracker{
		store: store,
		state: State{Status: StatusIdle},
	}
}

// Store returns the store name used in logs and metrics.
func (t *Tracker) Store() string {
	return t.store
}

// Observe registers fn for every subsequent transition.
func (t *Tracker) Observe(fn Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Read runs fn under the tracker lock with the current state. Stores use it to
// take consistent snapshots of their data together with the state.
func (t *Tracker) Read(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.state)
}

// Begin marks op pending, clears the error and returns the dispatch ticket.
func (t *Tracker) Begin(op Op) Ticket {
	t.mu.Lock()
	t.dispatched++
	tk := Ticket{
		Seq:           t.dispatched,
		Op:            op,
		CorrelationID: uuid.NewString(),
		Dispatched:    time.Now(),
	}
	t.state = State{Status: StatusPending, Op: op}
	observers := t.observers
	state := t.state
	t.mu.Unlock()

	observability.StoreTransitions.WithLabelValues(t.store, string(op), string(StatusPending)).Inc()
	notify(observers, Transition{Store: t.store, Ticket: tk, State: state})
	return tk
}

// Fulfill applies a successful read. merge runs under the tracker lock and
// only when the ticket is not stale. It reports whether the completion was
// applied.
func (t *Tracker) Fulfill(ctx context.Context, tk Ticket, merge func()) bool {
	return t.complete(ctx, tk, StatusFulfilled, "", func(bool) {
		if merge != nil {
			merge()
		}
	}, false)
}

// Commit applies a successful mutation. merge always runs under the tracker
// lock, told whether the ticket is stale; the state follows Fulfill's rules.
// It reports whether the state was updated.
func (t *Tracker) Commit(ctx context.Context, tk Ticket, merge func(stale bool)) bool {
	return t.complete(ctx, tk, StatusFulfilled, "", merge, true)
}

// Reject applies a failed completion. Store data is left untouched.
func (t *Tracker) Reject(ctx context.Context, tk Ticket, reason string) bool {
	return t.complete(ctx, tk, StatusRejected, reason, nil, false)
}

func (t *Tracker) complete(ctx context.Context, tk Ticket, status Status, reason string, merge func(stale bool), always bool) bool {
	log := observability.FromContext(ctx).With(
		slog.String("store", t.store),
		slog.String("op", string(tk.Op)),
		slog.Uint64("seq", tk.Seq),
		slog.String("correlation_id", tk.CorrelationID),
	)

	t.mu.Lock()
	if tk.Seq <= t.applied {
		merged := always && merge != nil
		if merged {
			merge(true)
		}
		applied := t.applied
		observers := t.observers
		state := t.state
		t.mu.Unlock()

		observability.StoreStaleCompletions.WithLabelValues(t.store, string(tk.Op)).Inc()
		if merged {
			log.Info("merged committed completion out of order",
				slog.Uint64("applied_seq", applied))
		} else {
			log.Warn("discarding stale completion",
				slog.String("status", string(status)),
				slog.Uint64("applied_seq", applied))
		}
		notify(observers, Transition{Store: t.store, Ticket: tk, State: state, Stale: true, Merged: merged})
		return false
	}

	t.applied = tk.Seq
	if merge != nil {
		merge(false)
	}

	if t.dispatched > tk.Seq {
		// A newer dispatch is still outstanding; its completion decides the status.
		t.state.Status = StatusPending
		t.state.Error = ""
	} else {
		t.state = State{
			Status:    status,
			Error:     reason,
			Op:        tk.Op,
			Succeeded: status == StatusFulfilled,
		}
	}
	observers := t.observers
	state := t.state
	t.mu.Unlock()

	observability.StoreTransitions.WithLabelValues(t.store, string(tk.Op), string(status)).Inc()
	if status == StatusRejected {
		log.Info("operation rejected",
			slog.String("error", reason),
			slog.Duration("elapsed", time.Since(tk.Dispatched)))
	} else {
		log.Debug("operation fulfilled", slog.Duration("elapsed", time.Since(tk.Dispatched)))
	}
	notify(observers, Transition{Store: t.store, Ticket: tk, State: state, Merged: merge != nil && status == StatusFulfilled})
	return true
}

// Reset returns the tracker to idle with no error and no success flag.
// Sequence numbers keep counting, so completions of operations dispatched
// before the reset are still ordered against later ones.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.state = State{Status: StatusIdle}
	observers := t.observers
	state := t.state
	t.mu.Unlock()

	notify(observers, Transition{Store: t.store, State: state})
}

// ResetWith is Reset with fn run under the tracker lock, for stores that
// drop their data together with the state.
func (t *Tracker) ResetWith(fn func()) {
	t.mu.Lock()
	if fn != nil {
		fn()
	}
	t.state = State{Status: StatusIdle}
	observers := t.observers
	state := t.state
	t.mu.Unlock()

	notify(observers, Transition{Store: t.store, State: state})
}

func notify(observers []Observer, tr Transition) {
	for _, fn := range observers {
		fn(tr)
	}
}

// Run dispatches call as op on t. On success merge receives the result under
// the tracker lock; on failure the tracker is rejected with describe(err).
// The call's own error is returned unchanged so callers can map it to a
// response. A stale completion is not an error: the remote operation did
// happen, its result simply lost the race to a newer one.
func Run[O any](
	ctx context.Context,
	t *Tracker,
	op Op,
	call func(ctx context.Context) (O, error),
	merge func(O),
	describe func(error) string,
) (O, error) {
	tk := t.Begin(op)
	out, err := call(ctx)
	if err != nil {
		msg := err.Error()
		if describe != nil {
			msg = describe(err)
		}
		t.Reject(ctx, tk, msg)
		return out, err
	}

	t.Fulfill(ctx, tk, func() {
		if merge != nil {
			merge(out)
		}
	})
	return out, nil
}

// RunCommit is Run for mutations: once the remote call succeeds its result is
// merged even when a newer dispatch has already set the state. merge is told
// whether the completion arrived stale.
func RunCommit[O any](
	ctx context.Context,
	t *Tracker,
	op Op,
	call func(ctx context.Context) (O, error),
	merge func(out O, stale bool),
	describe func(error) string,
) (O, error) {
	tk := t.Begin(op)
	out, err := call(ctx)
	if err != nil {
		msg := err.Error()
		if describe != nil {
			msg = describe(err)
		}
		t.Reject(ctx, tk, msg)
		return out, err
	}

	t.Commit(ctx, tk, func(stale bool) {
		if merge != nil {
			merge(out, stale)
		}
	})
	return out, nil
}
