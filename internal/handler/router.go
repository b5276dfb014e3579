package handler

import (
	"net/http"

	"bookbay-storefront/internal/middleware"
	"bookbay-storefront/internal/routeguard"
	"bookbay-storefront/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Rules          routeguard.Rules
	Cookies        middleware.PairReader
	Workspaces     middleware.Resolver
	Sessions       *service.SessionService
	Stream         *StateStream
	AllowedOrigins []string
	OpenAPI        *middleware.OpenAPIValidatorConfig
	AuthLimiter    *middleware.RateLimiter
	Ready          map[string]Pinger
	RequestLogging bool
}

// NewRouter builds the storefront router. The route guard runs ahead of
// routing and before the workspace is resolved, so a redirected request never
// touches a store.
func NewRouter(cfg RouterConfig) chi.Router {
	authHandler := NewAuthHandler(cfg.Sessions, cfg.Rules)
	catalogHandler := NewCatalogHandler()
	profileHandler := NewProfileHandler()

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.RequestLogging {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogging)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(routeguard.Middleware(cfg.Rules, cfg.Cookies))

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Workspace(cfg.Workspaces, cfg.Cookies))
		r.Use(middleware.OpenAPIValidator(cfg.OpenAPI))

		r.Group(func(r chi.Router) {
			if cfg.AuthLimiter != nil {
				r.Use(cfg.AuthLimiter.Middleware())
			}
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
		})
		r.Post("/logout", authHandler.Logout)
		r.Post("/api/auth/set-cookies", authHandler.SetCookies)
		r.Post("/api/auth/logout", authHandler.Logout)

		r.Get("/", Home(cfg.Rules))
		r.Get("/unauthorized", Unauthorized(cfg.Rules))

		r.Get("/dashboard", catalogHandler.List)
		r.Get("/books", catalogHandler.List)
		r.Get("/books/{id}", catalogHandler.Get)
		r.Post("/books/reset", catalogHandler.Reset)

		r.Get("/seller", catalogHandler.List)
		r.Get("/seller/edit/{id}", catalogHandler.Get)
		r.Post("/seller/add-book", catalogHandler.Add)
		r.Patch("/seller/edit/{id}", catalogHandler.Edit)
		r.Post("/seller/delete/{id}", catalogHandler.Delete)

		r.Get("/profile", profileHandler.Show)
		r.Patch("/profile/edit", profileHandler.Edit)

		r.With(middleware.RequireWorkspace).Get("/ws/state", cfg.Stream.Connect)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
