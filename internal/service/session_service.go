package service

import (
	"context"
	"time"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/repository"
)

// SessionView is the projection of a session that is safe to show to its
// owner; it never exposes the token ID or anything derived from the token.
type SessionView struct {
	ID           uint              `json:"id"`
	DeviceName   string            `json:"device_name"`
	DeviceType   domain.DeviceType `json:"device_type"`
	Browser      string            `json:"browser"`
	OS           string            `json:"os"`
	IPAddress    string            `json:"ip_address,omitempty"`
	LoginAt      time.Time         `json:"login_at"`
	LastActivity time.Time         `json:"last_activity"`
	IsCurrent    bool              `json:"is_current"`
}

// ValidationResult is the outcome of a successful request-time validation.
type ValidationResult struct {
	User      *domain.User
	SessionID uint
	TokenID   string
}

type SessionService struct {
	sessions repository.SessionRepository
}

func NewSessionService(sessions repository.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

// Validate is the per-request hot path: one indexed lookup on the
// (user, token ID) pair plus one advisory last-activity bump.
func (s *SessionService) Validate(userID uint, tokenID string) (*ValidationResult, error) {
	session, err := s.sessions.FindActiveByTokenIDForUser(userID, tokenID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.TouchActivity(session.ID); err != nil {
		return nil, err
	}
	return &ValidationResult{User: &session.User, SessionID: session.ID, TokenID: tokenID}, nil
}

func (s *SessionService) ListActiveSessions(userID uint, currentTokenID string) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:           session.ID,
			DeviceName:   session.DeviceName,
			DeviceType:   session.DeviceType,
			Browser:      session.Browser,
			OS:           session.OS,
			IPAddress:    session.IPAddress,
			LoginAt:      session.LoginAt,
			LastActivity: session.LastActivity,
			IsCurrent:    session.TokenID == currentTokenID,
		})
	}
	return views, nil
}

// RevokeSession deactivates one of the user's own sessions. The user scope in
// the query is what prevents cross-user revocation.
func (s *SessionService) RevokeSession(userID, sessionID uint) error {
	changed, err := s.sessions.RevokeByIDForUser(userID, sessionID, repository.ReasonUserRevoked)
	if err != nil {
		return err
	}
	if changed {
		observability.RecordSessionRevocation(context.Background(), repository.ReasonUserRevoked, 1)
	}
	return nil
}

// RevokeOtherSessions implements "log out everywhere else": every active
// session except the caller's own is deactivated.
func (s *SessionService) RevokeOtherSessions(userID uint, currentTokenID string) (int64, error) {
	count, err := s.sessions.RevokeOthersByUser(userID, currentTokenID, repository.ReasonRevokeOthers)
	if err != nil {
		return 0, err
	}
	observability.RecordSessionRevocation(context.Background(), repository.ReasonRevokeOthers, count)
	return count, nil
}

// ErrSessionNotFound mirrors the repository sentinel for callers that only
// import the service layer.
var ErrSessionNotFound = repository.ErrSessionNotFound
