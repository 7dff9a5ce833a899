package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/adminkit/session-auth-service/internal/http/handler"
	"github.com/adminkit/session-auth-service/internal/http/middleware"
	"github.com/adminkit/session-auth-service/internal/http/response"
	"github.com/adminkit/session-auth-service/internal/security"
	"github.com/adminkit/session-auth-service/internal/service"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	SessionHandler *handler.SessionHandler
	JWTManager     *security.JWTManager
	Sessions       service.SessionValidator
	SecureCookies  bool
	// ReadinessPing reports whether the backing store is reachable.
	ReadinessPing  func(ctx context.Context) error
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.ReadinessPing != nil {
			if err := dep.ReadinessPing(r.Context()); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "store is not ready")
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", dep.AuthHandler.Login)
		r.Get("/logout", dep.AuthHandler.Logout)
		r.Post("/logout", dep.AuthHandler.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireSession(dep.JWTManager, dep.Sessions, dep.SecureCookies))
		r.Get("/me", dep.SessionHandler.Me)
		r.Get("/me/sessions", dep.SessionHandler.ListSessions)
		r.Delete("/me/sessions/{session_id}", dep.SessionHandler.RevokeSession)
		r.Post("/me/sessions/revoke-others", dep.SessionHandler.RevokeOtherSessions)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
