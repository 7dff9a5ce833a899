package handler

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/adminkit/session-auth-service/internal/http/middleware"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/security"
	"github.com/adminkit/session-auth-service/internal/service"
)

type AuthHandler struct {
	auth          service.AuthenticatorInterface
	cookieTTL     time.Duration
	secureCookies bool
}

func NewAuthHandler(auth service.AuthenticatorInterface, cookieTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, cookieTTL: cookieTTL, secureCookies: secureCookies}
}

// Login handles the form post from the login page. Every failure goes back to
// the login page with only a coarse error code; the page itself is rendered
// elsewhere.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectToLogin(w, r, "invalid_request")
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	result, err := h.auth.Login(email, password, r.UserAgent(), clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			redirectToLogin(w, r, "invalid_credentials")
		case errors.Is(err, service.ErrAccountDisabled):
			redirectToLogin(w, r, "account_disabled")
		default:
			observability.Audit(r, "auth.login.error")
			redirectToLogin(w, r, "server_error")
		}
		return
	}

	security.SetAuthCookie(w, result.Token, h.cookieTTL, h.secureCookies)
	observability.Audit(r, "auth.login",
		"user_id", result.User.ID,
		"session_id", result.Session.ID,
		"device", result.Session.DeviceName,
	)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout deactivates the caller's session and clears the cookie. It succeeds
// from the client's point of view even when the token is already invalid.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := security.GetCookie(r, security.AuthCookieName); raw != "" {
		if err := h.auth.Logout(raw); err != nil {
			observability.Audit(r, "auth.logout.error")
		} else {
			observability.Audit(r, "auth.logout")
		}
	}
	security.ClearAuthCookie(w, h.secureCookies)
	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, middleware.LoginPath+"?error="+url.QueryEscape(code), http.StatusFound)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
