package domain

import "time"

// SessionState is the lifecycle state of a session. Sessions are history rows:
// they move from active to revoked and are never deleted.
type SessionState string

const (
	SessionStateActive  SessionState = "active"
	SessionStateRevoked SessionState = "revoked"
)

// DeviceType is the coarse device class derived from the User-Agent header.
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeUnknown DeviceType = "unknown"
)

// Session records one login. The signed token itself is never stored; only the
// random token ID embedded in its claims is, so the store holds no bearer secrets.
type Session struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	UserID        uint         `gorm:"index;not null" json:"user_id"`
	TokenID       string       `gorm:"size:64;uniqueIndex;not null" json:"-"`
	DeviceName    string       `gorm:"size:128" json:"device_name"`
	DeviceType    DeviceType   `gorm:"size:16" json:"device_type"`
	Browser       string       `gorm:"size:64" json:"browser"`
	OS            string       `gorm:"size:64" json:"os"`
	UserAgent     string       `gorm:"size:512" json:"user_agent"`
	IPAddress     string       `gorm:"size:64" json:"ip_address"`
	State         SessionState `gorm:"size:16;index;not null;default:active" json:"state"`
	IsCurrent     bool         `gorm:"not null;default:false" json:"is_current"`
	LoginAt       time.Time    `gorm:"not null" json:"login_at"`
	LastActivity  time.Time    `gorm:"index;not null" json:"last_activity"`
	LogoutAt      *time.Time   `json:"logout_at,omitempty"`
	RevokedReason *string      `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Active reports whether the session is still usable for request validation.
func (s *Session) Active() bool { return s.State == SessionStateActive }

// SessionSettings is the per-user concurrent-session policy. A row is created
// lazily with defaults on first login.
type SessionSettings struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	// No column default: with one, gorm would omit false from the INSERT and
	// the single-session policy could never be stored.
	AllowMultipleDevices bool      `gorm:"not null" json:"allow_multiple_devices"`
	MaxSessions          int       `gorm:"not null;default:5" json:"max_sessions"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SettingsDefaults seed a lazily created SessionSettings row.
type SettingsDefaults struct {
	AllowMultipleDevices bool
	MaxSessions          int
}
