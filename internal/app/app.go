package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/adminkit/session-auth-service/internal/config"
	"github.com/adminkit/session-auth-service/internal/database"
	"github.com/adminkit/session-auth-service/internal/http/handler"
	"github.com/adminkit/session-auth-service/internal/http/router"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/repository"
	"github.com/adminkit/session-auth-service/internal/security"
	"github.com/adminkit/session-auth-service/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, db *gorm.DB) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Observability: runtime, DB: db}
}

// Build constructs the whole object graph explicitly: store handle, token
// manager, repositories, services, handlers, router, server. Nothing is a
// package-level singleton; everything is passed down from here.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	jwtMgr := security.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL())
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	authSvc := service.NewAuthService(users, sessions, jwtMgr, cfg.SettingsDefaults())
	sessionSvc := service.NewSessionService(sessions)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:    handler.NewAuthHandler(authSvc, jwtMgr.TTL(), cfg.CookieSecure()),
		SessionHandler: handler.NewSessionHandler(sessionSvc),
		JWTManager:     jwtMgr,
		Sessions:       sessionSvc,
		SecureCookies:  cfg.CookieSecure(),
		ReadinessPing:  func(ctx context.Context) error { return database.Ping(ctx, db) },
		EnableOTelHTTP: cfg.OTELEnabled,
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return New(cfg, logger, server, runtime, db), nil
}

// Run serves until ctx is canceled, then drains in-flight requests, flushes
// telemetry and closes the store.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := a.Observability.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if a.DB != nil {
			if err := database.Close(a.DB); err != nil {
				errs = append(errs, err)
			}
		}
		a.Logger.Info("shutdown complete")
		return errors.Join(errs...)
	})

	return g.Wait()
}
