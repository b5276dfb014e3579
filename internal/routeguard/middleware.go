package routeguard

import (
	"log/slog"
	"net/http"

	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/observability"
)

// PairReader extracts the cookie pair from a request.
type PairReader interface {
	Read(r *http.Request) domain.CookiePair
}

// Middleware applies the rule table to every request before any handler runs.
// Redirects use 307 so the browser repeats the original method.
func Middleware(rules Rules, reader PairReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pair := reader.Read(r)
			if !pair.Consistent() {
				slog.Warn("inconsistent session cookies",
					slog.Bool("has_token", pair.HasToken()),
					slog.Bool("has_role", pair.Role != ""),
					slog.String("path", r.URL.Path))
			}

			decision := rules.Decide(r.URL.Path, pair)
			if decision.Allowed() {
				observability.RouteDecisions.WithLabelValues("allow").Inc()
				next.ServeHTTP(w, r)
				return
			}

			observability.RouteDecisions.WithLabelValues("redirect").Inc()
			observability.FromContext(r.Context()).Debug("route guard redirect",
				slog.String("path", r.URL.Path),
				slog.String("to", decision.Redirect),
				slog.String("reason", decision.Reason))

			http.Redirect(w, r, decision.Redirect, http.StatusTemporaryRedirect)
		})
	}
}
