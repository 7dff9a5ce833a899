package service

import (
	"sort"
	"sync"
	"time"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/repository"
)

// fakeUserRepository is an in-memory stand-in keyed by email.
type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
	next  uint
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepository) FindByID(id uint) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepository) FindByEmail(email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepository) Create(user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	user.ID = f.next
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserRepository) Update(user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Email] = user
	return nil
}

// fakeSessionRepository mirrors the store semantics closely enough for
// service-level tests: state transitions, current flag and policy eviction.
type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions []*domain.Session
	settings map[uint]*domain.SessionSettings
	next     uint
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{settings: make(map[uint]*domain.SessionSettings)}
}

func (f *fakeSessionRepository) CreateWithPolicy(s *domain.Session, defaults domain.SettingsDefaults) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	settings, ok := f.settings[s.UserID]
	if !ok {
		settings = &domain.SessionSettings{
			UserID:               s.UserID,
			AllowMultipleDevices: defaults.AllowMultipleDevices,
			MaxSessions:          defaults.MaxSessions,
		}
		if settings.MaxSessions < 1 {
			settings.MaxSessions = 1
		}
		f.settings[s.UserID] = settings
	}

	now := time.Now().UTC()
	var active []*domain.Session
	for _, existing := range f.sessions {
		if existing.UserID != s.UserID || existing.State != domain.SessionStateActive {
			continue
		}
		existing.IsCurrent = false
		active = append(active, existing)
	}

	if !settings.AllowMultipleDevices {
		for _, existing := range active {
			revokeFake(existing, now, repository.ReasonSingleDevice)
		}
	} else if len(active) >= settings.MaxSessions {
		sort.Slice(active, func(i, j int) bool {
			return active[i].LastActivity.Before(active[j].LastActivity)
		})
		for _, existing := range active[:len(active)-settings.MaxSessions+1] {
			revokeFake(existing, now, repository.ReasonMaxSessions)
		}
	}

	f.next++
	s.ID = f.next
	s.State = domain.SessionStateActive
	s.IsCurrent = true
	s.LoginAt = now
	s.LastActivity = now
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeSessionRepository) FindActiveByTokenIDForUser(userID uint, tokenID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.TokenID == tokenID && s.State == domain.SessionStateActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionRepository) TouchActivity(sessionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == sessionID {
			s.LastActivity = time.Now().UTC()
		}
	}
	return nil
}

func (f *fakeSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.sessions {
		if s.UserID == userID && s.State == domain.SessionStateActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (f *fakeSessionRepository) RevokeByTokenID(tokenID, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.TokenID == tokenID && s.State == domain.SessionStateActive {
			revokeFake(s, now, reason)
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepository) RevokeByIDForUser(userID, sessionID uint, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == sessionID && s.UserID == userID && s.State == domain.SessionStateActive {
			revokeFake(s, time.Now().UTC(), reason)
			return true, nil
		}
	}
	return false, repository.ErrSessionNotFound
}

func (f *fakeSessionRepository) RevokeOthersByUser(userID uint, keepTokenID, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.UserID == userID && s.TokenID != keepTokenID && s.State == domain.SessionStateActive {
			revokeFake(s, now, reason)
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepository) SettingsForUser(userID uint) (*domain.SessionSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.settings[userID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *settings
	return &copied, nil
}

func revokeFake(s *domain.Session, at time.Time, reason string) {
	s.State = domain.SessionStateRevoked
	s.IsCurrent = false
	logoutAt := at
	s.LogoutAt = &logoutAt
	r := reason
	s.RevokedReason = &r
}
