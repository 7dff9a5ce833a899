package repository

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adminkit/session-auth-service/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Role{}, &domain.User{}, &domain.SessionSettings{}, &domain.Session{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	role := domain.Role{Name: "Member " + email}
	if err := db.Create(&role).Error; err != nil {
		t.Fatalf("create role: %v", err)
	}
	user := domain.User{Name: "Test User", Email: email, Password: "x", IsActive: true, RoleID: role.ID}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func newSession(userID uint, tokenID string) *domain.Session {
	return &domain.Session{
		UserID:     userID,
		TokenID:    tokenID,
		DeviceName: "Chrome on Linux",
		DeviceType: domain.DeviceTypeDesktop,
		Browser:    "Chrome",
		OS:         "Linux",
		UserAgent:  "test-agent",
		IPAddress:  "127.0.0.1",
	}
}

func defaultsMulti(max int) domain.SettingsDefaults {
	return domain.SettingsDefaults{AllowMultipleDevices: true, MaxSessions: max}
}

func activeSessions(t *testing.T, db *gorm.DB, userID uint) []domain.Session {
	t.Helper()
	var sessions []domain.Session
	err := db.Where("user_id = ? AND state = ?", userID, domain.SessionStateActive).
		Order("id ASC").Find(&sessions).Error
	if err != nil {
		t.Fatalf("query active sessions: %v", err)
	}
	return sessions
}

func setLastActivity(t *testing.T, db *gorm.DB, sessionID uint, at time.Time) {
	t.Helper()
	if err := db.Model(&domain.Session{}).Where("id = ?", sessionID).Update("last_activity", at).Error; err != nil {
		t.Fatalf("set last_activity: %v", err)
	}
}

func TestCreateWithPolicyCreatesSettingsLazily(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "lazy@example.com")

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-1"), defaultsMulti(3)); err != nil {
		t.Fatalf("CreateWithPolicy: %v", err)
	}

	settings, err := repo.SettingsForUser(user.ID)
	if err != nil {
		t.Fatalf("SettingsForUser: %v", err)
	}
	if !settings.AllowMultipleDevices || settings.MaxSessions != 3 {
		t.Fatalf("settings not seeded from defaults: %+v", settings)
	}
}

func TestCreateWithPolicyMarksOnlyNewestCurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "current@example.com")

	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if err := repo.CreateWithPolicy(newSession(user.ID, tok), defaultsMulti(5)); err != nil {
			t.Fatalf("CreateWithPolicy(%s): %v", tok, err)
		}
	}

	sessions := activeSessions(t, db, user.ID)
	if len(sessions) != 3 {
		t.Fatalf("expected 3 active sessions, got %d", len(sessions))
	}
	currents := 0
	for _, s := range sessions {
		if s.IsCurrent {
			currents++
			if s.TokenID != "tok-3" {
				t.Fatalf("current session has token %q, want tok-3", s.TokenID)
			}
		}
	}
	if currents != 1 {
		t.Fatalf("expected exactly one current session, got %d", currents)
	}
}

func TestCreateWithPolicySingleDeviceEvictsAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "single@example.com")
	defaults := domain.SettingsDefaults{AllowMultipleDevices: false, MaxSessions: 5}

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-old"), defaults); err != nil {
		t.Fatalf("first login: %v", err)
	}

	// The lazily created row must store the restrictive policy as-is; the
	// second login reads it back from the database before evicting.
	settings, err := repo.SettingsForUser(user.ID)
	if err != nil {
		t.Fatalf("SettingsForUser: %v", err)
	}
	if settings.AllowMultipleDevices {
		t.Fatal("single-device policy was not persisted")
	}
	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-new"), defaults); err != nil {
		t.Fatalf("second login: %v", err)
	}

	sessions := activeSessions(t, db, user.ID)
	if len(sessions) != 1 || sessions[0].TokenID != "tok-new" {
		t.Fatalf("expected only the new session to survive, got %+v", sessions)
	}
	if !sessions[0].IsCurrent {
		t.Fatal("surviving session should be current")
	}

	var evicted domain.Session
	if err := db.Where("token_id = ?", "tok-old").First(&evicted).Error; err != nil {
		t.Fatalf("load evicted session: %v", err)
	}
	if evicted.State != domain.SessionStateRevoked {
		t.Fatalf("evicted session state = %q, want revoked", evicted.State)
	}
	if evicted.RevokedReason == nil || *evicted.RevokedReason != ReasonSingleDevice {
		t.Fatalf("evicted session reason = %v, want %q", evicted.RevokedReason, ReasonSingleDevice)
	}
	if evicted.LogoutAt == nil {
		t.Fatal("evicted session should carry a logout timestamp")
	}
}

func TestCreateWithPolicyEvictsOldestAtCap(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "cap@example.com")
	defaults := defaultsMulti(2)

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-a"), defaults); err != nil {
		t.Fatalf("login a: %v", err)
	}
	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-b"), defaults); err != nil {
		t.Fatalf("login b: %v", err)
	}

	// Make tok-b the stalest so eviction picks it over tok-a.
	base := time.Now().UTC()
	var a, b domain.Session
	if err := db.Where("token_id = ?", "tok-a").First(&a).Error; err != nil {
		t.Fatalf("load tok-a: %v", err)
	}
	if err := db.Where("token_id = ?", "tok-b").First(&b).Error; err != nil {
		t.Fatalf("load tok-b: %v", err)
	}
	setLastActivity(t, db, a.ID, base)
	setLastActivity(t, db, b.ID, base.Add(-time.Hour))

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-c"), defaults); err != nil {
		t.Fatalf("login c: %v", err)
	}

	sessions := activeSessions(t, db, user.ID)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 active sessions after eviction, got %d", len(sessions))
	}
	tokens := map[string]bool{}
	for _, s := range sessions {
		tokens[s.TokenID] = true
	}
	if !tokens["tok-a"] || !tokens["tok-c"] {
		t.Fatalf("expected tok-a and tok-c active, got %v", tokens)
	}

	var evicted domain.Session
	if err := db.Where("token_id = ?", "tok-b").First(&evicted).Error; err != nil {
		t.Fatalf("load evicted: %v", err)
	}
	if evicted.State != domain.SessionStateRevoked || evicted.RevokedReason == nil || *evicted.RevokedReason != ReasonMaxSessions {
		t.Fatalf("stalest session not evicted as expected: %+v", evicted)
	}
}

func TestCreateWithPolicyMaxSessionsFloor(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "floor@example.com")

	// A nonsense cap is clamped to 1 at settings creation.
	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-1"), domain.SettingsDefaults{AllowMultipleDevices: true, MaxSessions: 0}); err != nil {
		t.Fatalf("CreateWithPolicy: %v", err)
	}
	settings, err := repo.SettingsForUser(user.ID)
	if err != nil {
		t.Fatalf("SettingsForUser: %v", err)
	}
	if settings.MaxSessions != 1 {
		t.Fatalf("MaxSessions = %d, want clamped to 1", settings.MaxSessions)
	}
}

func TestFindActiveByTokenIDForUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "find@example.com")

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-1"), defaultsMulti(5)); err != nil {
		t.Fatalf("CreateWithPolicy: %v", err)
	}

	found, err := repo.FindActiveByTokenIDForUser(user.ID, "tok-1")
	if err != nil {
		t.Fatalf("FindActiveByTokenIDForUser: %v", err)
	}
	if found.User.Email != "find@example.com" {
		t.Fatalf("expected user preloaded, got %+v", found.User)
	}

	// Wrong user, wrong token and revoked session all come back as not found.
	if _, err := repo.FindActiveByTokenIDForUser(user.ID+1, "tok-1"); err != ErrSessionNotFound {
		t.Fatalf("wrong user: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := repo.FindActiveByTokenIDForUser(user.ID, "tok-other"); err != ErrSessionNotFound {
		t.Fatalf("wrong token: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := repo.RevokeByTokenID("tok-1", ReasonLogout); err != nil {
		t.Fatalf("RevokeByTokenID: %v", err)
	}
	if _, err := repo.FindActiveByTokenIDForUser(user.ID, "tok-1"); err != ErrSessionNotFound {
		t.Fatalf("revoked: expected ErrSessionNotFound, got %v", err)
	}
}

func TestTouchActivity(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "touch@example.com")

	if err := repo.CreateWithPolicy(newSession(user.ID, "tok-1"), defaultsMulti(5)); err != nil {
		t.Fatalf("CreateWithPolicy: %v", err)
	}
	var s domain.Session
	if err := db.Where("token_id = ?", "tok-1").First(&s).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	stale := time.Now().UTC().Add(-time.Hour)
	setLastActivity(t, db, s.ID, stale)

	if err := repo.TouchActivity(s.ID); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	var after domain.Session
	if err := db.First(&after, s.ID).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if !after.LastActivity.After(stale) {
		t.Fatalf("last activity not bumped: %v", after.LastActivity)
	}
}

func TestListActiveByUserIDOrdersByActivity(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "list@example.com")

	base := time.Now().UTC()
	for i, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if err := repo.CreateWithPolicy(newSession(user.ID, tok), defaultsMulti(5)); err != nil {
			t.Fatalf("CreateWithPolicy(%s): %v", tok, err)
		}
		var s domain.Session
		if err := db.Where("token_id = ?", tok).First(&s).Error; err != nil {
			t.Fatalf("load %s: %v", tok, err)
		}
		setLastActivity(t, db, s.ID, base.Add(time.Duration(i)*time.Minute))
	}

	sessions, err := repo.ListActiveByUserID(user.ID)
	if err != nil {
		t.Fatalf("ListActiveByUserID: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].TokenID != "tok-3" || sessions[2].TokenID != "tok-1" {
		t.Fatalf("sessions not ordered most recent first: %s, %s, %s",
			sessions[0].TokenID, sessions[1].TokenID, sessions[2].TokenID)
	}
}

func TestRevokeByIDForUserScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")

	if err := repo.CreateWithPolicy(newSession(owner.ID, "tok-owner"), defaultsMulti(5)); err != nil {
		t.Fatalf("CreateWithPolicy: %v", err)
	}
	var s domain.Session
	if err := db.Where("token_id = ?", "tok-owner").First(&s).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}

	if _, err := repo.RevokeByIDForUser(other.ID, s.ID, ReasonUserRevoked); err != ErrSessionNotFound {
		t.Fatalf("cross-user revoke: expected ErrSessionNotFound, got %v", err)
	}

	changed, err := repo.RevokeByIDForUser(owner.ID, s.ID, ReasonUserRevoked)
	if err != nil || !changed {
		t.Fatalf("owner revoke: changed=%v err=%v", changed, err)
	}
	if len(activeSessions(t, db, owner.ID)) != 0 {
		t.Fatal("session still active after revoke")
	}

	// Revoking an already revoked session reports not found.
	if _, err := repo.RevokeByIDForUser(owner.ID, s.ID, ReasonUserRevoked); err != ErrSessionNotFound {
		t.Fatalf("double revoke: expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeOthersByUserKeepsCaller(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "others@example.com")

	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		if err := repo.CreateWithPolicy(newSession(user.ID, tok), defaultsMulti(5)); err != nil {
			t.Fatalf("CreateWithPolicy(%s): %v", tok, err)
		}
	}

	count, err := repo.RevokeOthersByUser(user.ID, "tok-2", ReasonRevokeOthers)
	if err != nil {
		t.Fatalf("RevokeOthersByUser: %v", err)
	}
	if count != 2 {
		t.Fatalf("revoked %d sessions, want 2", count)
	}
	sessions := activeSessions(t, db, user.ID)
	if len(sessions) != 1 || sessions[0].TokenID != "tok-2" {
		t.Fatalf("expected only tok-2 to survive, got %+v", sessions)
	}
}

func TestConcurrentLoginsRespectSingleSessionCap(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	user := createTestUser(t, db, "race@example.com")
	defaults := defaultsMulti(1)

	var g errgroup.Group
	for _, tok := range []string{"tok-left", "tok-right"} {
		tok := tok
		g.Go(func() error {
			return repo.CreateWithPolicy(newSession(user.ID, tok), defaults)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent logins: %v", err)
	}

	// Whichever login ran second must have evicted the first.
	sessions := activeSessions(t, db, user.ID)
	if len(sessions) != 1 {
		t.Fatalf("expected exactly 1 active session after concurrent logins, got %d", len(sessions))
	}
	if !sessions[0].IsCurrent {
		t.Fatal("surviving session should be current")
	}
}
