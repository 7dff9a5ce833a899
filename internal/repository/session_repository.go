package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// Revocation reasons recorded on the session row when it leaves the active state.
const (
	ReasonLogout       = "logout"
	ReasonSingleDevice = "single_device_login"
	ReasonMaxSessions  = "max_sessions_evicted"
	ReasonUserRevoked  = "user_session_revoked"
	ReasonRevokeOthers = "user_revoke_others"
)

type SessionRepository interface {
	// CreateWithPolicy runs the whole login-time sequence as one atomic unit
	// per user: lazily create settings, demote the previous current session,
	// evict per policy, insert the new current session.
	CreateWithPolicy(s *domain.Session, defaults domain.SettingsDefaults) error
	FindActiveByTokenIDForUser(userID uint, tokenID string) (*domain.Session, error)
	TouchActivity(sessionID uint) error
	ListActiveByUserID(userID uint) ([]domain.Session, error)
	RevokeByTokenID(tokenID, reason string) (int64, error)
	RevokeByIDForUser(userID, sessionID uint, reason string) (bool, error)
	RevokeOthersByUser(userID uint, keepTokenID, reason string) (int64, error)
	SettingsForUser(userID uint) (*domain.SessionSettings, error)
}

type GormSessionRepository struct {
	db *gorm.DB

	// Serializes CreateWithPolicy per user so two concurrent logins cannot
	// both pass the active-session count check. Cross-user logins stay
	// concurrent.
	userLocks sync.Map
}

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) userLock(userID uint) *sync.Mutex {
	mu, _ := r.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (r *GormSessionRepository) CreateWithPolicy(s *domain.Session, defaults domain.SettingsDefaults) error {
	mu := r.userLock(s.UserID)
	mu.Lock()
	defer mu.Unlock()

	err := r.db.Transaction(func(tx *gorm.DB) error {
		settings, err := settingsForUserTx(tx, s.UserID, &defaults)
		if err != nil {
			return err
		}

		// At most one current session per user survives this call.
		if err := tx.Model(&domain.Session{}).
			Where("user_id = ? AND state = ? AND is_current", s.UserID, domain.SessionStateActive).
			Update("is_current", false).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if !settings.AllowMultipleDevices {
			// Single-session policy: a new login always evicts every prior one.
			res := tx.Model(&domain.Session{}).
				Where("user_id = ? AND state = ?", s.UserID, domain.SessionStateActive).
				Updates(revocation(now, ReasonSingleDevice))
			if res.Error != nil {
				return res.Error
			}
			observability.RecordSessionEviction(context.Background(), ReasonSingleDevice, res.RowsAffected)
		} else {
			var active int64
			if err := tx.Model(&domain.Session{}).
				Where("user_id = ? AND state = ?", s.UserID, domain.SessionStateActive).
				Count(&active).Error; err != nil {
				return err
			}
			if active >= int64(settings.MaxSessions) {
				// Evict exactly enough of the stalest sessions to make room
				// for the one being created.
				var oldest []domain.Session
				if err := tx.Where("user_id = ? AND state = ?", s.UserID, domain.SessionStateActive).
					Order("last_activity ASC").
					Limit(int(active) - settings.MaxSessions + 1).
					Find(&oldest).Error; err != nil {
					return err
				}
				ids := make([]uint, 0, len(oldest))
				for _, old := range oldest {
					ids = append(ids, old.ID)
				}
				res := tx.Model(&domain.Session{}).
					Where("id IN ?", ids).
					Updates(revocation(now, ReasonMaxSessions))
				if res.Error != nil {
					return res.Error
				}
				observability.RecordSessionEviction(context.Background(), ReasonMaxSessions, res.RowsAffected)
			}
		}

		s.State = domain.SessionStateActive
		s.IsCurrent = true
		s.LoginAt = now
		s.LastActivity = now
		return tx.Create(s).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create_with_policy", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create_with_policy", "success")
	return nil
}

func (r *GormSessionRepository) FindActiveByTokenIDForUser(userID uint, tokenID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Preload("User.Role").
		Where("user_id = ? AND token_id = ? AND state = ?", userID, tokenID, domain.SessionStateActive).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token_id_for_user", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_active_by_token_id_for_user", "success")
	return &s, nil
}

// TouchActivity bumps last_activity. Lost updates are acceptable here; the
// field is advisory telemetry, not a correctness input.
func (r *GormSessionRepository) TouchActivity(sessionID uint) error {
	err := r.db.Model(&domain.Session{}).
		Where("id = ?", sessionID).
		Update("last_activity", time.Now().UTC()).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "touch_activity", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "touch_activity", "success")
	return nil
}

func (r *GormSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND state = ?", userID, domain.SessionStateActive).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// RevokeByTokenID deactivates every session carrying this token ID. Token IDs
// are unique so this normally matches one row; the bulk form is defensive.
func (r *GormSessionRepository) RevokeByTokenID(tokenID, reason string) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("token_id = ? AND state = ?", tokenID, domain.SessionStateActive).
		Updates(revocation(time.Now().UTC(), reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_token_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_token_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) RevokeByIDForUser(userID, sessionID uint, reason string) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND user_id = ? AND state = ?", sessionID, userID, domain.SessionStateActive).
		Updates(revocation(time.Now().UTC(), reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_id_for_user", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_id_for_user", "not_found")
		return false, ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_id_for_user", "success")
	return true, nil
}

func (r *GormSessionRepository) RevokeOthersByUser(userID uint, keepTokenID, reason string) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND token_id <> ? AND state = ?", userID, keepTokenID, domain.SessionStateActive).
		Updates(revocation(time.Now().UTC(), reason))
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_others_by_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_others_by_user", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) SettingsForUser(userID uint) (*domain.SessionSettings, error) {
	var settings domain.SessionSettings
	err := r.db.Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &settings, nil
}

func settingsForUserTx(tx *gorm.DB, userID uint, defaults *domain.SettingsDefaults) (*domain.SessionSettings, error) {
	var settings domain.SessionSettings
	err := tx.Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	settings = domain.SessionSettings{
		UserID:               userID,
		AllowMultipleDevices: defaults.AllowMultipleDevices,
		MaxSessions:          defaults.MaxSessions,
	}
	if settings.MaxSessions < 1 {
		settings.MaxSessions = 1
	}
	if err := tx.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func revocation(at time.Time, reason string) map[string]any {
	return map[string]any{
		"state":          domain.SessionStateRevoked,
		"is_current":     false,
		"logout_at":      at,
		"revoked_reason": reason,
	}
}
