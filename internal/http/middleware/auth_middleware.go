package middleware

import (
	"context"
	"net/http"

	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/security"
	"github.com/adminkit/session-auth-service/internal/service"
)

type contextKey string

const PrincipalContextKey contextKey = "principal"

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/auth/login"

// Principal is the authenticated identity attached to the request context by
// RequireSession.
type Principal struct {
	UserID    uint
	Email     string
	Name      string
	Role      string
	TokenID   string
	SessionID uint
}

// RequireSession is the gate every protected request passes through. The
// token alone is never sufficient: its claims are cross-checked against a
// live session row, so revoking the session locks the token out immediately.
// Any failure clears the client's cookie and redirects to the login page
// without leaking why.
func RequireSession(jwtMgr *security.JWTManager, sessions service.SessionValidator, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, security.AuthCookieName)
			if raw == "" {
				observability.RecordSessionValidation(r.Context(), "missing_token")
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}
			claims, err := jwtMgr.Parse(raw)
			if err != nil {
				observability.RecordSessionValidation(r.Context(), "invalid_token")
				security.ClearAuthCookie(w, secureCookies)
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}
			result, err := sessions.Validate(claims.UserID, claims.TokenID)
			if err != nil {
				// Covers revoked, evicted and never-existed sessions alike.
				observability.RecordSessionValidation(r.Context(), "session_invalid")
				security.ClearAuthCookie(w, secureCookies)
				http.Redirect(w, r, LoginPath, http.StatusFound)
				return
			}
			observability.RecordSessionValidation(r.Context(), "valid")
			principal := &Principal{
				UserID:    result.User.ID,
				Email:     result.User.Email,
				Name:      result.User.Name,
				Role:      result.User.Role.Name,
				TokenID:   claims.TokenID,
				SessionID: result.SessionID,
			}
			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok
}
