package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adminkit/session-auth-service/internal/domain"
)

// ErrInvalidToken is the only error surfaced for a token that fails
// verification. Bad signature, expiry and malformed input are deliberately
// indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTokenTTL is used when the configured TTL string cannot be parsed.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the signed token payload. The token is self-contained but never
// sufficient on its own: validation cross-checks the TokenID against a live
// session row, which is how revocation works.
type Claims struct {
	UserID  uint   `json:"user_id"`
	TokenID string `json:"token_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl}
}

// TTL is the lifetime of issued tokens; the auth cookie max-age matches it.
func (m *JWTManager) TTL() time.Duration { return m.ttl }

// Issue signs a token for user and returns it along with the random token ID
// embedded in its claims.
func (m *JWTManager) Issue(user *domain.User) (token string, tokenID string, err error) {
	tokenID, err = NewTokenID()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	claims := Claims{
		UserID:  user.ID,
		TokenID: tokenID,
		Email:   user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", err
	}
	return token, tokenID, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
// Every failure collapses to ErrInvalidToken.
func (m *JWTManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewTokenID returns a cryptographically random 16-byte identifier, hex encoded.
func NewTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewRandomSecret returns a random 32-byte signing key, hex encoded. Only used
// as the process-lifetime fallback when no key is configured.
func NewRandomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var tokenTTLPattern = regexp.MustCompile(`^(\d+)(h|d|m|s)?$`)

// ParseTokenTTL parses a TTL written as "<integer><unit>" with unit one of
// s, m, h, d. A missing unit means hours; anything that does not match the
// pattern falls back to 24 hours.
func ParseTokenTTL(s string) time.Duration {
	match := tokenTTLPattern.FindStringSubmatch(s)
	if match == nil {
		return DefaultTokenTTL
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return DefaultTokenTTL
	}
	switch match[2] {
	case "s":
		return time.Duration(value) * time.Second
	case "m":
		return time.Duration(value) * time.Minute
	case "d":
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Hour
	}
}
