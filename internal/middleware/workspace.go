package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/storefront"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const WorkspaceKey contextKey = "workspace"

// Resolver finds the workspace behind a cookie pair.
type Resolver interface {
	Resolve(ctx context.Context, pair domain.CookiePair) (*storefront.Workspace, error)
}

// PairReader reads the session cookie pair of a request.
type PairReader interface {
	Read(r *http.Request) domain.CookiePair
}

// RequestLogging copies chi's request ID into the logging context.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Workspace attaches the visitor's workspace to the request when the cookie
// pair resolves to one. Requests without a usable session pass through
// untouched; access decisions belong to the route guard and RequireWorkspace.
func Workspace(resolver Resolver, reader PairReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pair := reader.Read(r)
			if !pair.HasToken() {
				next.ServeHTTP(w, r)
				return
			}

			ws, err := resolver.Resolve(r.Context(), pair)
			if err != nil {
				observability.FromContext(r.Context()).Warn("session cookie did not resolve",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path))
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithWorkspace(r.Context(), ws)
			ctx = observability.WithSessionKey(ctx, ws.Key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWorkspace answers 401 when no workspace was resolved.
func RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetWorkspace(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetWorkspace(ctx context.Context) (*storefront.Workspace, bool) {
	ws, ok := ctx.Value(WorkspaceKey).(*storefront.Workspace)
	return ws, ok && ws != nil
}

func WithWorkspace(ctx context.Context, ws *storefront.Workspace) context.Context {
	return context.WithValue(ctx, WorkspaceKey, ws)
}
