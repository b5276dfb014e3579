// Package routeguard decides, per navigation, whether a visitor may see a path
// given the token/role cookie pair. The rule table is the single authority for
// role-based access; handlers ask it instead of re-checking roles themselves.
package routeguard

import (
	"fmt"
	"io"
	"path"
	"strings"

	"bookbay-storefront/internal/domain"

	"gopkg.in/yaml.v3"
)

// Decision is the outcome of a guard evaluation. The zero value allows.
type Decision struct {
	Redirect string
	Reason   string
}

// Allowed reports whether the navigation may proceed.
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

func (d Decision) String() string {
	if d.Allowed() {
		return "allow"
	}
	return "redirect:" + d.Redirect
}

// Reasons attached to redirect decisions.
const (
	ReasonAlreadySignedIn = "already_signed_in"
	ReasonBuyerOnly       = "buyer_only"
	ReasonSellerOnly      = "seller_only"
	ReasonSignInRequired  = "sign_in_required"
)

// Rules is the allow/redirect decision table.
type Rules struct {
	AuthPaths             []string `yaml:"auth_paths"`
	BuyerPrefixes         []string `yaml:"buyer_prefixes"`
	SellerPrefixes        []string `yaml:"seller_prefixes"`
	AuthenticatedPrefixes []string `yaml:"authenticated_prefixes"`
	LoginPath             string   `yaml:"login_path"`
	UnauthorizedPath      string   `yaml:"unauthorized_path"`
	BuyerHome             string   `yaml:"buyer_home"`
	SellerHome            string   `yaml:"seller_home"`
}

// DefaultRules returns the storefront's route table.
func DefaultRules() Rules {
	return Rules{
		AuthPaths:             []string{"/login", "/register"},
		BuyerPrefixes:         []string{"/dashboard"},
		SellerPrefixes:        []string{"/seller"},
		AuthenticatedPrefixes: []string{"/profile", "/books"},
		LoginPath:             "/login",
		UnauthorizedPath:      "/unauthorized",
		BuyerHome:             "/dashboard",
		SellerHome:            "/seller",
	}
}

// LoadRules reads a YAML rule table. Keys that are absent keep their defaults.
func LoadRules(r io.Reader) (Rules, error) {
	rules := DefaultRules()
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil && err != io.EOF {
		return Rules{}, fmt.Errorf("decode guard rules: %w", err)
	}
	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) validate() error {
	for name, p := range map[string]string{
		"login_path":        r.LoginPath,
		"unauthorized_path": r.UnauthorizedPath,
		"buyer_home":        r.BuyerHome,
		"seller_home":       r.SellerHome,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("guard rules: %s must be an absolute path, got %q", name, p)
		}
	}
	return nil
}

// Decide evaluates the table in order; the first matching rule wins.
func (r Rules) Decide(pathname string, pair domain.CookiePair) Decision {
	p := clean(pathname)

	if matchesExact(p, r.AuthPaths) && pair.Valid() {
		return Decision{Redirect: r.Home(pair.Role), Reason: ReasonAlreadySignedIn}
	}
	if matchesPrefix(p, r.BuyerPrefixes) && (!pair.HasToken() || pair.Role != string(domain.RoleBuyer)) {
		return Decision{Redirect: r.LoginPath, Reason: ReasonBuyerOnly}
	}
	if matchesPrefix(p, r.SellerPrefixes) && (!pair.HasToken() || pair.Role != string(domain.RoleSeller)) {
		return Decision{Redirect: r.LoginPath, Reason: ReasonSellerOnly}
	}
	if matchesPrefix(p, r.AuthenticatedPrefixes) && !pair.HasToken() {
		return Decision{Redirect: r.UnauthorizedPath, Reason: ReasonSignInRequired}
	}
	return Decision{}
}

// Allows is shorthand for Decide(...).Allowed().
func (r Rules) Allows(pathname string, pair domain.CookiePair) bool {
	return r.Decide(pathname, pair).Allowed()
}

// Home returns the landing path for a role: sellers get the seller home,
// everything else the buyer home.
func (r Rules) Home(role string) string {
	if role == string(domain.RoleSeller) {
		return r.SellerHome
	}
	return r.BuyerHome
}

var defaultRules = DefaultRules()

// Decide evaluates the default table.
func Decide(pathname string, pair domain.CookiePair) Decision {
	return defaultRules.Decide(pathname, pair)
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchesExact(p string, paths []string) bool {
	for _, candidate := range paths {
		if p == candidate {
			return true
		}
	}
	return false
}

// matchesPrefix is segment-aware: "/seller" matches "/seller" and
// "/seller/add-book" but not "/sellers".
func matchesPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
