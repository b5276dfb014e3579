// Package profile holds the signed-in user's profile projection.
package profile

import (
	"context"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/lifecycle"
)

const StoreName = "profile"

// API is the subset of the remote client the profile store needs.
type API interface {
	ViewProfile(ctx context.Context, token string) (domain.UserRef, error)
	EditProfile(ctx context.Context, token string, in domain.ProfileInput, image *apiclient.Upload) (domain.UserRef, error)
}

// Snapshot is the renderable projection of the store.
type Snapshot struct {
	lifecycle.State
	User *domain.UserRef `json:"user"`
}

// Store is the profile store. Edits are announced as profile.changed on the
// publisher so the credential copy of the user follows.
type Store struct {
	api        API
	publisher  events.Publisher
	sessionKey string
	tracker    *lifecycle.Tracker

	user *domain.UserRef
}

// New creates an empty profile store for the session identified by sessionKey.
func New(api API, publisher events.Publisher, sessionKey string) *Store {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Store{
		api:        api,
		publisher:  publisher,
		sessionKey: sessionKey,
		tracker:    lifecycle.NewTracker(StoreName),
	}
}

func (s *Store) Tracker() *lifecycle.Tracker {
	return s.tracker
}

// FetchProfile loads the profile projection.
func (s *Store) FetchProfile(ctx context.Context, token string) (domain.UserRef, error) {
	return lifecycle.Run(ctx, s.tracker, lifecycle.OpFetchProfile,
		func(ctx context.Context) (domain.UserRef, error) {
			return s.api.ViewProfile(ctx, token)
		},
		func(user domain.UserRef) {
			s.user = &user
		},
		func(err error) string { return apiclient.Message(err, "Failed to load profile") },
	)
}

// EditProfile updates the profile and publishes profile.changed. A successful
// edit is merged and announced even when a newer fetch already completed.
func (s *Store) EditProfile(ctx context.Context, token string, in domain.ProfileInput, image *apiclient.Upload) (domain.UserRef, error) {
	user, err := lifecycle.RunCommit(ctx, s.tracker, lifecycle.OpEditProfile,
		func(ctx context.Context) (domain.UserRef, error) {
			return s.api.EditProfile(ctx, token, in, image)
		},
		func(user domain.UserRef, _ bool) {
			s.user = &user
		},
		func(err error) string { return apiclient.Message(err, "Failed to update profile") },
	)
	if err != nil {
		return user, err
	}

	changed := user
	s.publisher.Publish(ctx, events.Event{
		Kind:    events.ProfileChanged,
		Session: s.sessionKey,
		Role:    domain.Role(user.Role),
		User:    &changed,
	})
	return user, nil
}

// Snapshot returns a copy of the profile and request state.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.tracker.Read(func(st lifecycle.State) {
		snap.State = st
		if s.user != nil {
			u := *s.user
			snap.User = &u
		}
	})
	return snap
}

// ResetUpdate clears the success flag and error after an edit was shown.
func (s *Store) ResetUpdate() {
	s.tracker.Reset()
}

// Clear drops the profile, as on sign-out.
func (s *Store) Clear() {
	s.tracker.ResetWith(func() {
		s.user = nil
	})
}
