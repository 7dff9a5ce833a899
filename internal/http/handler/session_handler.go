package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adminkit/session-auth-service/internal/http/middleware"
	"github.com/adminkit/session-auth-service/internal/http/response"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/service"
)

type SessionHandler struct {
	sessions service.SessionManagerInterface
}

func NewSessionHandler(sessions service.SessionManagerInterface) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"id":    p.UserID,
		"email": p.Email,
		"name":  p.Name,
		"role":  p.Role,
	})
}

func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	views, err := h.sessions.ListActiveSessions(p.UserID, p.TokenID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not list sessions")
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *SessionHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	if err := h.sessions.RevokeSession(p.UserID, uint(id)); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke session")
		return
	}
	observability.Audit(r, "session.revoke", "user_id", p.UserID, "session_id", id)
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "revoked"})
}

func (h *SessionHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context")
		return
	}
	count, err := h.sessions.RevokeOtherSessions(p.UserID, p.TokenID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke sessions")
		return
	}
	observability.Audit(r, "session.revoke_others", "user_id", p.UserID, "revoked", count)
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "revoked", "revoked_count": count})
}
