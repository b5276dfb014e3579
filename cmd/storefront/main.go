package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookbay-storefront/api"
	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/config"
	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/handler"
	"bookbay-storefront/internal/messaging"
	"bookbay-storefront/internal/middleware"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/persist"
	"bookbay-storefront/internal/routeguard"
	"bookbay-storefront/internal/service"
	"bookbay-storefront/internal/sessioncookie"
	"bookbay-storefront/internal/storefront"
	"bookbay-storefront/internal/websocket"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting storefront",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.BackendURL),
		slog.String("credential_backend", cfg.CredentialBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, closeRecords, err := openCredentialStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open credential store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeRecords()

	rules := routeguard.DefaultRules()
	if cfg.GuardRulesFile != "" {
		rules, err = loadRules(cfg.GuardRulesFile)
		if err != nil {
			slog.Error("failed to load guard rules", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("loaded guard rules", slog.String("file", cfg.GuardRulesFile))
	}

	backend := apiclient.NewClient(cfg.BackendURL)
	bus := events.NewBus(uuid.NewString())

	ready := map[string]handler.Pinger{
		"backend":     backend,
		"credentials": records,
	}

	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewRelay(rmq, bus).Start(ctx); err != nil {
			slog.Error("failed to start event relay", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ready["rabbitmq"] = rmq
		slog.Info("event relay started", slog.String("origin", bus.Origin()))
	}

	registry := storefront.NewRegistry(backend, records, bus, storefront.Options{
		TTL:           cfg.SessionTTL,
		CredentialTTL: cfg.SessionTTL,
	})
	defer registry.Shutdown()

	hub := websocket.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	stream := handler.NewStateStream(hub, registry, origins)
	registry.OnTransition(stream.OnTransition)
	bus.Subscribe(events.SessionCleared, stream.OnSessionCleared)

	bridge := sessioncookie.NewBridge(sessioncookie.Options{
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionTTL,
	})
	sessions := service.NewSessionService(backend, registry, bridge)

	authLimiter := middleware.NewRateLimiter(5, 10)
	defer authLimiter.Stop()

	openapi := middleware.DefaultOpenAPIValidatorConfig(api.OpenAPI)
	openapi.Enabled = cfg.OpenAPIValidation

	r := handler.NewRouter(handler.RouterConfig{
		Rules:          rules,
		Cookies:        bridge,
		Workspaces:     registry,
		Sessions:       sessions,
		Stream:         stream,
		AllowedOrigins: origins,
		OpenAPI:        openapi,
		AuthLimiter:    authLimiter,
		Ready:          ready,
		RequestLogging: cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("storefront listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	slog.Info("server stopped gracefully")
}

// openCredentialStore connects the configured credential record backend.
// The returned func releases it.
func openCredentialStore(ctx context.Context, cfg *config.Config) (persist.Store, func(), error) {
	switch cfg.CredentialBackend {
	case config.BackendRedis:
		store := persist.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
		return store, func() { store.Close() }, nil

	case config.BackendPostgres:
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := persist.NewPostgres(db)
		if err := store.Migrate(connCtx); err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgresql")

		go startCredentialCleanup(ctx, store)
		return store, func() { db.Close() }, nil

	default:
		slog.Info("using in-memory credential records")
		return persist.NewMemory(), func() {}, nil
	}
}

func loadRules(path string) (routeguard.Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return routeguard.Rules{}, err
	}
	defer f.Close()
	return routeguard.LoadRules(f)
}

// startCredentialCleanup periodically deletes expired credential records.
func startCredentialCleanup(ctx context.Context, store *persist.Postgres) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping credential cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := store.DeleteExpired(cleanupCtx)
			if err != nil {
				slog.Error("credential cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("credential cleanup completed",
					slog.Int64("records_deleted", count))
			}
			cancel()
		}
	}
}
