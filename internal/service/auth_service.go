package service

import (
	"errors"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/observability"
	"github.com/adminkit/session-auth-service/internal/repository"
	"github.com/adminkit/session-auth-service/internal/security"
)

// Sentinel errors for the login flow. Unknown email and wrong password both
// map to ErrInvalidCredentials so callers cannot enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// LoginResult carries everything the HTTP layer needs after a successful
// login: the signed token for the cookie and the session row just created.
type LoginResult struct {
	Token   string
	TokenID string
	User    *domain.User
	Session *domain.Session
}

type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	jwtMgr   *security.JWTManager
	defaults domain.SettingsDefaults
}

func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, jwtMgr *security.JWTManager, defaults domain.SettingsDefaults) *AuthService {
	return &AuthService{users: users, sessions: sessions, jwtMgr: jwtMgr, defaults: defaults}
}

// Login verifies credentials, mints a token and records the session under the
// user's multi-device policy. Eviction of older sessions is a silent side
// effect, never an error.
func (s *AuthService) Login(email, password, userAgent, ip string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		observability.RecordAuthLogin("account_disabled")
		return nil, ErrAccountDisabled
	}
	if !security.VerifyPassword(password, user.Password) {
		observability.RecordAuthLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	token, tokenID, err := s.jwtMgr.Issue(user)
	if err != nil {
		return nil, err
	}
	device := security.DeriveDeviceInfo(userAgent)
	session := &domain.Session{
		UserID:     user.ID,
		TokenID:    tokenID,
		DeviceName: device.DeviceName,
		DeviceType: device.DeviceType,
		Browser:    device.Browser,
		OS:         device.OS,
		UserAgent:  device.UserAgent,
		IPAddress:  ip,
	}
	if err := s.sessions.CreateWithPolicy(session, s.defaults); err != nil {
		return nil, err
	}
	observability.RecordAuthLogin("success")
	return &LoginResult{Token: token, TokenID: tokenID, User: user, Session: session}, nil
}

// Logout deactivates the session behind rawToken. An unverifiable token is a
// no-op: there is nothing trustworthy to revoke.
func (s *AuthService) Logout(rawToken string) error {
	claims, err := s.jwtMgr.Parse(rawToken)
	if err != nil {
		observability.RecordAuthLogout("invalid_token")
		return nil
	}
	if _, err := s.sessions.RevokeByTokenID(claims.TokenID, repository.ReasonLogout); err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	observability.RecordAuthLogout("success")
	return nil
}
