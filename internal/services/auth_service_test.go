package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/internlink/auth-api/internal/auth"
	"github.com/internlink/auth-api/internal/models"
	"github.com/internlink/auth-api/internal/services"
	pkgauth "github.com/internlink/auth-api/pkg/auth"
	pkglogger "github.com/internlink/auth-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
	}
}

func (m *MockUserRepository) addUser(t *testing.T, id, email, password, status string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         "student",
		Status:       status,
		CreatedAt:    time.Now(),
	}
	m.usersByEmail[email] = user
	m.usersByID[id] = user
	return user
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return user, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if _, exists := m.usersByEmail[user.Email]; exists {
		return nil, models.ErrConflict
	}
	user.ID = "generated-id"
	user.CreatedAt = time.Now()
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return user, nil
}

// MockLoginGuard records guard calls
type MockLoginGuard struct {
	failures  []string
	successes []string
}

func (m *MockLoginGuard) RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string) {
	m.failures = append(m.failures, email)
}

func (m *MockLoginGuard) RecordSuccess(ctx context.Context, email string) {
	m.successes = append(m.successes, email)
}

func newTestAuthService(repo services.UserRepository, guard services.LoginGuard) *services.AuthService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	tm := auth.NewTokenManager("test-secret-at-least-16-chars", 15*time.Minute, 7*24*time.Hour)
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 0, RandomDelayMs: 0})
	auditLogger := pkglogger.NewAuditLogger(logger)
	return services.NewAuthService(repo, guard, tm, timing, logger, auditLogger)
}

func TestAuthServiceLogin_SuccessClearsLockoutState(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)

	resp, err := service.Login(context.Background(), "user@example.com", "CorrectHorse1", "fp", "ua")

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, []string{"user@example.com"}, guard.successes)
	assert.Empty(t, guard.failures)
}

func TestAuthServiceLogin_WrongPasswordRecordsFailure(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)

	_, err := service.Login(context.Background(), "user@example.com", "wrong-password", "fp", "ua")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, []string{"user@example.com"}, guard.failures)
	assert.Empty(t, guard.successes)
}

func TestAuthServiceLogin_UnknownEmailStillRecordsFailure(t *testing.T) {
	// Skipping the guard for unknown accounts would leak account existence
	// through throttling behavior.
	repo := NewMockUserRepository()
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)

	_, err := service.Login(context.Background(), "nobody@example.com", "whatever1", "fp", "ua")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, []string{"nobody@example.com"}, guard.failures)
}

func TestAuthServiceLogin_SuspendedAccountRejected(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "suspended")
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)

	_, err := service.Login(context.Background(), "user@example.com", "CorrectHorse1", "fp", "ua")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Len(t, guard.failures, 1)
}

func TestAuthServiceLogin_NormalizesEmail(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)

	resp, err := service.Login(context.Background(), " User@Example.COM ", "CorrectHorse1", "fp", "ua")

	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.User.ID)
}

func TestAuthServiceRegister_CreatesUser(t *testing.T) {
	repo := NewMockUserRepository()
	service := newTestAuthService(repo, &MockLoginGuard{})

	user, err := service.Register(context.Background(), "new@example.com", "ValidPass99", "New User")

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NotEqual(t, "ValidPass99", user.PasswordHash)
}

func TestAuthServiceRegister_DuplicateEmailConflicts(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "taken@example.com", "CorrectHorse1", "active")
	service := newTestAuthService(repo, &MockLoginGuard{})

	_, err := service.Register(context.Background(), "taken@example.com", "ValidPass99", "New User")

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthServiceRegister_RejectsWeakPassword(t *testing.T) {
	repo := NewMockUserRepository()
	service := newTestAuthService(repo, &MockLoginGuard{})

	_, err := service.Register(context.Background(), "new@example.com", "short", "New User")

	var pve *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pve)
}

func TestAuthServiceRefreshToken_IssuesNewPair(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	guard := &MockLoginGuard{}
	service := newTestAuthService(repo, guard)
	ctx := context.Background()

	login, err := service.Login(ctx, "user@example.com", "CorrectHorse1", "fp", "ua")
	require.NoError(t, err)

	refreshed, err := service.RefreshToken(ctx, login.RefreshToken)

	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, "user-1", refreshed.User.ID)
}

func TestAuthServiceRefreshToken_RejectsAccessToken(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	service := newTestAuthService(repo, &MockLoginGuard{})
	ctx := context.Background()

	login, err := service.Login(ctx, "user@example.com", "CorrectHorse1", "fp", "ua")
	require.NoError(t, err)

	_, err = service.RefreshToken(ctx, login.AccessToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthServiceGetUser_ReturnsProfile(t *testing.T) {
	repo := NewMockUserRepository()
	repo.addUser(t, "user-1", "user@example.com", "CorrectHorse1", "active")
	service := newTestAuthService(repo, &MockLoginGuard{})

	resp, err := service.GetUser(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", resp.Email)
}
