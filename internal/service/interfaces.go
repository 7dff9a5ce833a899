package service

type AuthenticatorInterface interface {
	Login(email, password, userAgent, ip string) (*LoginResult, error)
	Logout(rawToken string) error
}

// SessionValidator is the narrow contract the request gate needs.
type SessionValidator interface {
	Validate(userID uint, tokenID string) (*ValidationResult, error)
}

type SessionManagerInterface interface {
	ListActiveSessions(userID uint, currentTokenID string) ([]SessionView, error)
	RevokeSession(userID, sessionID uint) error
	RevokeOtherSessions(userID uint, currentTokenID string) (int64, error)
}
