package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"tokengate/internal/config"
	"tokengate/internal/infrastructure"
	customMiddleware "tokengate/internal/middleware"
	"tokengate/internal/services"
	"tokengate/internal/token"
	transport "tokengate/internal/transport/http"
)

const (
	// AppName is the service name used in logs.
	AppName = "tokengate"
	// Version is the service version, overridable at build time with
	// -ldflags "-X tokengate/internal/app.Version=...".
	Version = "1.0.0"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Manager      *token.Manager
	TokenService services.TokenService
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", cfg.Server.Port))

	otelProviders, err := infrastructure.InitializeOTel(Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices wires the persistence layer, the lifecycle engine, and
// the service facade in dependency order.
func (a *Application) initializeServices() error {
	ctx := context.Background()

	metrics, err := token.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create token metrics: %w", err)
	}

	persister := token.NewPersister(
		a.Config.Persistence.TokensFile,
		a.Config.Persistence.SnapshotEnvVar,
		a.Logger,
	)

	records, source := persister.Load(ctx)
	store := token.NewStore()
	store.Replace(records)

	a.Manager = token.NewManager(store, persister, a.Logger, metrics)
	a.TokenService = services.NewTokenService(a.Manager, a.Logger, source, a.Config.Persistence.TokensFile)

	a.Logger.InfoContext(ctx, "token store initialized",
		slog.String("source", source),
		slog.Int("tokens", len(records)))
	return nil
}

// setupRouter builds the middleware chain and mounts all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.Use(render.SetContentType(render.ContentTypeJSON))

	accessHandler := transport.NewAccessHandler(a.TokenService, a.Logger)
	syncHandler := transport.NewSyncHandler(a.TokenService, a.Logger)
	tokenHandler := transport.NewTokenHandler(a.TokenService, a.Logger)
	healthHandler := transport.NewHealthHandler(a.TokenService, a.Logger, Version)

	// Clients have shipped calling both bare and /api-prefixed paths, so the
	// access and sync surfaces answer on both.
	r.Get("/", healthHandler.Root)
	r.Post("/sync_tokens", syncHandler.Sync)
	r.Mount("/", accessHandler.Routes())
	r.Mount("/api", a.apiRouter(accessHandler, syncHandler, tokenHandler, healthHandler))

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) apiRouter(access *transport.AccessHandler, sync *transport.SyncHandler, tokens *transport.TokenHandler, health *transport.HealthHandler) chi.Router {
	r := chi.NewRouter()
	r.Post("/sync_tokens", sync.Sync)
	r.Mount("/", access.Routes())
	r.Mount("/tokens", tokens.Routes())
	r.Get("/health", health.Health)
	r.Get("/version", health.Version)
	return r
}

// createServer builds the HTTP server from configured timeouts.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.ListenAddr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the HTTP server and blocks until an interrupt or a server error,
// then shuts down gracefully.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening",
			slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop shuts the server down gracefully and writes a final token snapshot so
// usage counters are durable across restarts.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.Manager.Flush(shutdownCtx); err != nil {
		a.Logger.WarnContext(ctx, "Final token snapshot failed", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	infrastructure.CloseLogFile()
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}
