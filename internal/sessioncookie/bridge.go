// Package sessioncookie mirrors the authoritative token/role pair into the
// restricted-access cookie pair read by the route guard.
package sessioncookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bookbay-storefront/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenCookie = "token"
	RoleCookie  = "role"

	DefaultMaxAge = 24 * time.Hour
)

var (
	ErrInvalidCookie = errors.New("session cookie rejected")
	ErrTokenExpired  = errors.New("session token already expired")
)

// Options controls cookie attributes. Zero values fall back to the defaults
// used by NewBridge.
type Options struct {
	Secure   bool
	SameSite http.SameSite
	Path     string
	Domain   string
	MaxAge   time.Duration
	Now      func() time.Time
}

// Bridge writes, clears and reads the token/role cookie pair.
type Bridge struct {
	opts Options
}

// NewBridge creates a cookie bridge.
func NewBridge(opts Options) *Bridge {
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{opts: opts}
}

// SetSession writes both cookies or neither. Both cookies are built and
// checked before either is added to the response, so a rejected value never
// leaves a lone token or role cookie behind.
func (b *Bridge) SetSession(w http.ResponseWriter, token string, role domain.Role) error {
	token = strings.TrimSpace(token)
	if token == "" || role == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCookie, domain.ErrInconsistentSession)
	}
	if role != domain.RoleBuyer && role != domain.RoleSeller {
		return fmt.Errorf("%w: %w", ErrInvalidCookie, domain.ErrInvalidRole)
	}

	ttl, err := b.lifetime(token)
	if err != nil {
		return err
	}

	now := b.opts.Now()
	tokenCookie := b.cookie(TokenCookie, token, now, ttl)
	roleCookie := b.cookie(RoleCookie, string(role), now, ttl)

	for _, c := range []*http.Cookie{tokenCookie, roleCookie} {
		if err := c.Valid(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCookie, c.Name, err)
		}
	}

	http.SetCookie(w, tokenCookie)
	http.SetCookie(w, roleCookie)
	return nil
}

// Clear expires both cookies.
func (b *Bridge) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, RoleCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     b.opts.Path,
			Domain:   b.opts.Domain,
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   b.opts.Secure,
			SameSite: b.opts.SameSite,
		})
	}
}

// Read returns the cookie pair carried by the request. Missing cookies yield
// empty halves; that is ordinary input for the guard, not an error.
func (b *Bridge) Read(r *http.Request) domain.CookiePair {
	return domain.CookiePair{
		Token: cookieValue(r, TokenCookie),
		Role:  cookieValue(r, RoleCookie),
	}
}

// lifetime caps the cookie lifetime at the token's own expiry when the token
// is a JWT carrying an exp claim. Opaque tokens get the configured maximum.
func (b *Bridge) lifetime(token string) (time.Duration, error) {
	ttl := b.opts.MaxAge

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ttl, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ttl, nil
	}

	remaining := exp.Time.Sub(b.opts.Now())
	if remaining <= 0 {
		return 0, ErrTokenExpired
	}
	if remaining < ttl {
		ttl = remaining
	}
	return ttl, nil
}

func (b *Bridge) cookie(name, value string, now time.Time, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     b.opts.Path,
		Domain:   b.opts.Domain,
		Expires:  now.Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   b.opts.Secure,
		SameSite: b.opts.SameSite,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
