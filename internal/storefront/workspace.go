// Package storefront owns the per-session workspaces: one credential,
// catalog and profile store per signed-in visitor.
package storefront

import (
	"time"

	"bookbay-storefront/internal/catalog"
	"bookbay-storefront/internal/credential"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/profile"
)

// Workspace is the set of stores behind one session.
type Workspace struct {
	Key        string
	Credential *credential.Store
	Catalog    *catalog.Store
	Profile    *profile.Store
	Created    time.Time
}

// SessionView is the session as shown to renderers. The token is omitted.
type SessionView struct {
	Authenticated bool            `json:"authenticated"`
	Role          domain.Role     `json:"role,omitempty"`
	User          *domain.UserRef `json:"user,omitempty"`
}

// State is the full renderable state of a workspace.
type State struct {
	Session SessionView      `json:"session"`
	Catalog catalog.Snapshot `json:"catalog"`
	Profile profile.Snapshot `json:"profile"`
}

// Token returns the session token for remote calls.
func (w *Workspace) Token() string {
	return w.Credential.Token()
}

// State snapshots every store.
func (w *Workspace) State() State {
	session := w.Credential.Session()
	return State{
		Session: SessionView{
			Authenticated: session.Authenticated,
			Role:          session.Role,
			User:          session.User,
		},
		Catalog: w.Catalog.Snapshot(),
		Profile: w.Profile.Snapshot(),
	}
}

// reset drops the data of the catalog and profile stores.
func (w *Workspace) reset() {
	w.Catalog.Clear()
	w.Profile.Clear()
}
