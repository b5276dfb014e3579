// Package credential keeps the authenticated session of one visitor: an
// in-memory copy plus a persisted record that survives restarts. The cookie
// pair stays authoritative; Sync re-validates the copy against it.
package credential

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/persist"

	"golang.org/x/crypto/blake2b"
)

// Field names of the persisted record.
const (
	FieldToken = "bookbay_token"
	FieldUser  = "bookbay_user"
)

var ErrCorruptRecord = errors.New("persisted credential is unreadable")

// SessionKey derives the storage and registry key for a token. Raw tokens
// are never used as keys or logged.
func SessionKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Store is the credential store.
type Store struct {
	records persist.Store
	ttl     time.Duration

	mu      sync.RWMutex
	session domain.Session
}

// New creates an empty credential store backed by records.
func New(records persist.Store, ttl time.Duration) *Store {
	return &Store{records: records, ttl: ttl}
}

// Session returns a copy of the current session.
func (s *Store) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// Token returns the session token, empty when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token
}

// Establish records a new session. The persisted record is written first;
// if that fails the in-memory session is left as it was.
func (s *Store) Establish(ctx context.Context, token string, user domain.UserRef) (domain.Session, error) {
	role, err := domain.ParseRole(user.Role)
	if err != nil {
		return domain.Session{}, fmt.Errorf("establish session: %w", err)
	}
	user.Role = string(role)
	session, err := domain.NewSession(token, role, &user)
	if err != nil {
		return domain.Session{}, fmt.Errorf("establish session: %w", err)
	}

	if err := s.save(ctx, token, user); err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	previous := s.session.Token
	s.session = session
	s.mu.Unlock()

	if previous != "" && previous != token {
		if err := s.records.Remove(ctx, SessionKey(previous)); err != nil {
			observability.FromContext(ctx).Warn("failed to remove replaced credential",
				slog.String("error", err.Error()))
		}
	}
	return copySession(session), nil
}

// Clear signs out: the in-memory session is dropped and the persisted
// record removed. The in-memory copy is cleared even if removal fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	token := s.session.Token
	s.session = domain.Session{}
	s.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := s.records.Remove(ctx, SessionKey(token)); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Forget drops the in-memory session without touching the persisted record.
func (s *Store) Forget() {
	s.mu.Lock()
	s.session = domain.Session{}
	s.mu.Unlock()
}

// Restore loads the persisted record for pair and accepts it only if it
// matches the cookie pair exactly.
func (s *Store) Restore(ctx context.Context, pair domain.CookiePair) (domain.Session, error) {
	if !pair.Valid() {
		return domain.Session{}, domain.ErrNotAuthenticated
	}

	fields, err := s.records.Load(ctx, SessionKey(pair.Token))
	if err != nil {
		return domain.Session{}, fmt.Errorf("restore credential: %w", err)
	}

	token := fields[FieldToken]
	var user domain.UserRef
	if err := json.Unmarshal([]byte(fields[FieldUser]), &user); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if token != pair.Token || user.Role != pair.Role {
		return domain.Session{}, domain.ErrInconsistentSession
	}

	session, err := domain.NewSession(token, domain.Role(user.Role), &user)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return copySession(session), nil
}

// Sync brings the in-memory copy in line with the cookie pair. A missing or
// half pair signs the copy out. A pair naming a different session is
// restored from the persisted record; when the record is missing or
// disagrees with the cookie, the cookie pair is adopted without a user and
// a disagreeing record is dropped.
func (s *Store) Sync(ctx context.Context, pair domain.CookiePair) (domain.Session, error) {
	current := s.Session()

	if !pair.Valid() {
		if current.Authenticated {
			s.Forget()
		}
		return domain.Session{}, nil
	}
	if current.Token == pair.Token && string(current.Role) == pair.Role {
		return current, nil
	}

	session, err := s.Restore(ctx, pair)
	if err == nil {
		return session, nil
	}

	role, roleErr := domain.ParseRole(pair.Role)
	if roleErr != nil {
		s.Forget()
		return domain.Session{}, roleErr
	}

	log := observability.FromContext(ctx)
	log.Info("adopting session from cookie", slog.String("reason", err.Error()))
	if errors.Is(err, domain.ErrInconsistentSession) || errors.Is(err, ErrCorruptRecord) {
		if rmErr := s.records.Remove(ctx, SessionKey(pair.Token)); rmErr != nil {
			log.Warn("failed to drop stale credential", slog.String("error", rmErr.Error()))
		}
	}

	adopted, err := domain.NewSession(pair.Token, role, nil)
	if err != nil {
		s.Forget()
		return domain.Session{}, err
	}
	s.mu.Lock()
	s.session = adopted
	s.mu.Unlock()
	return copySession(adopted), nil
}

// ApplyProfile merges a profile update into the session user and rewrites
// the persisted record. The session role is not changed by a profile update.
func (s *Store) ApplyProfile(ctx context.Context, update domain.UserRef) error {
	s.mu.RLock()
	session := copySession(s.session)
	s.mu.RUnlock()

	if !session.Authenticated {
		return nil
	}

	update.Role = ""
	merged := update
	if session.User != nil {
		merged = session.User.Merge(update)
	}
	merged.Role = string(session.Role)

	if err := s.save(ctx, session.Token, merged); err != nil {
		return err
	}

	s.mu.Lock()
	if s.session.Token == session.Token {
		s.session.User = &merged
	}
	s.mu.Unlock()
	return nil
}

// HandleEvent reacts to workspace events.
func (s *Store) HandleEvent(ctx context.Context, e events.Event) {
	switch e.Kind {
	case events.ProfileChanged:
		if e.User == nil {
			return
		}
		if err := s.ApplyProfile(ctx, *e.User); err != nil {
			observability.FromContext(ctx).Error("failed to apply profile change",
				slog.String("error", err.Error()))
		}
	case events.SessionCleared:
		s.Forget()
	}
}

func (s *Store) save(ctx context.Context, token string, user domain.UserRef) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	fields := map[string]string{
		FieldToken: token,
		FieldUser:  string(encoded),
	}
	if err := s.records.Save(ctx, SessionKey(token), fields, s.ttl); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return nil
}

func copySession(s domain.Session) domain.Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
