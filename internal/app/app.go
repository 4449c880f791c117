// Package app wires the service together: configuration, logging,
// telemetry, the license store and engine, the HTTP router, and the server
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/shimantoislam/flash-auth/internal/config"
	"github.com/shimantoislam/flash-auth/internal/infrastructure"
	"github.com/shimantoislam/flash-auth/internal/license"
	"github.com/shimantoislam/flash-auth/internal/middleware"
	"github.com/shimantoislam/flash-auth/internal/services"
	transport "github.com/shimantoislam/flash-auth/internal/transport/http"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application owns every long-lived component of the service.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *license.Store
	Server *http.Server

	rateLimiter *middleware.VerifyRateLimiter
}

// NewApplication builds the whole service from configuration. The optional
// configPath names a YAML file; environment variables override it.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry(Version)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	store, err := license.Open(cfg.Store.DataFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open license store: %w", err)
	}

	engine := license.NewEngine(store, license.SystemClock{}, logger)
	svc, err := services.NewLicenseService(engine, telemetry.Meter, logger)
	if err != nil {
		return nil, fmt.Errorf("build license service: %w", err)
	}

	auth, err := middleware.NewAdminAuth(cfg.Admin, logger)
	if err != nil {
		return nil, fmt.Errorf("build admin auth: %w", err)
	}
	if !auth.Enabled() {
		logger.Warn("no admin password hash configured, admin API is disabled")
	}

	app := &Application{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		rateLimiter: middleware.NewVerifyRateLimiter(cfg.Verify, logger),
	}
	app.Server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app.router(svc, auth, telemetry.MetricsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func (a *Application) router(svc services.LicenseService, auth *middleware.AdminAuth, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Recoverer(a.Logger))

	verifyHandler := transport.NewVerifyHandler(svc, a.Logger)
	adminHandler := transport.NewAdminHandler(svc, auth, a.Logger)
	healthHandler := transport.NewHealthHandler(a.Store, Version, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(chimiddleware.Timeout(a.Config.Server.ReadTimeout))

		r.Group(func(r chi.Router) {
			r.Use(a.rateLimiter.Handler)
			r.Mount("/verify", verifyHandler.Routes())
		})

		r.Mount("/admin", adminHandler.Routes())
	})

	r.Mount("/healthz", healthHandler.Routes())
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}

// Run starts the HTTP server and blocks until shutdown. SIGINT/SIGTERM
// trigger a graceful stop bounded by the configured shutdown timeout;
// in-flight mutations complete and persist before the process exits.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.rateLimiter.Close()

	// One trace id for the whole process lifecycle, so startup and
	// shutdown records correlate the same way request records do.
	ctx = infrastructure.EnsureTraceID(ctx)

	a.Logger.InfoContext(ctx, "server starting",
		slog.String("addr", a.Server.Addr),
		slog.String("version", Version),
		slog.String("data_file", a.Store.Path()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		a.Logger.InfoContext(ctx, "server shutting down",
			slog.String("timeout", a.Config.Server.ShutdownTimeout.String()))
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		a.Logger.ErrorContext(ctx, "server stopped with error", slog.String("error", err.Error()))
		return err
	}
	a.Logger.InfoContext(ctx, "server stopped", slog.String("uptime_end", time.Now().Format(time.RFC3339)))
	return nil
}
