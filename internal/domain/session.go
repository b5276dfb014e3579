package domain

import (
	"errors"
	"strings"
)

var (
	ErrInconsistentSession = errors.New("inconsistent session: token and role must be set together")
	ErrInvalidRole         = errors.New("invalid role")
	ErrNotAuthenticated    = errors.New("not authenticated")
)

// Role is the marketplace role attached to a session.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// ParseRole accepts the two marketplace roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBuyer:
		return RoleBuyer, nil
	case RoleSeller:
		return RoleSeller, nil
	default:
		return "", ErrInvalidRole
	}
}

// UserRef is the user record returned by the remote API on login and profile reads.
type UserRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Image string `json:"image,omitempty"`
}

// Merge overlays the non-empty fields of patch onto u.
func (u UserRef) Merge(patch UserRef) UserRef {
	if patch.ID != "" {
		u.ID = patch.ID
	}
	if patch.Name != "" {
		u.Name = patch.Name
	}
	if patch.Email != "" {
		u.Email = patch.Email
	}
	if patch.Role != "" {
		u.Role = patch.Role
	}
	if patch.Image != "" {
		u.Image = patch.Image
	}
	return u
}

// Session is the authenticated identity of the current visitor.
// Token and Role are always written and cleared together.
type Session struct {
	Token         string   `json:"token,omitempty"`
	Role          Role     `json:"role,omitempty"`
	User          *UserRef `json:"user,omitempty"`
	Authenticated bool     `json:"authenticated"`
}

// NewSession builds an authenticated session. Both token and role are required.
func NewSession(token string, role Role, user *UserRef) (Session, error) {
	if token == "" || role == "" {
		return Session{}, ErrInconsistentSession
	}
	if role != RoleBuyer && role != RoleSeller {
		return Session{}, ErrInvalidRole
	}
	return Session{Token: token, Role: role, User: user, Authenticated: true}, nil
}

// Validate reports ErrInconsistentSession when only one of token and role is set,
// or when the authenticated flag disagrees with them.
func (s Session) Validate() error {
	hasToken, hasRole := s.Token != "", s.Role != ""
	if hasToken != hasRole {
		return ErrInconsistentSession
	}
	if s.Authenticated != (hasToken && hasRole) {
		return ErrInconsistentSession
	}
	return nil
}

// Pair returns the transport view of the session.
func (s Session) Pair() CookiePair {
	return CookiePair{Token: s.Token, Role: string(s.Role)}
}

// CookiePair is the token/role pair as carried by request cookies. Either half
// may be missing; the route guard treats absence as ordinary input.
type CookiePair struct {
	Token string
	Role  string
}

// HasToken reports whether a token cookie is present.
func (p CookiePair) HasToken() bool {
	return p.Token != ""
}

// Valid reports whether both halves are present.
func (p CookiePair) Valid() bool {
	return p.Token != "" && p.Role != ""
}

// Consistent reports whether the pair is co-present or co-absent.
func (p CookiePair) Consistent() bool {
	return (p.Token == "") == (p.Role == "")
}
