package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/internlink/auth-api/internal/auth"
	"github.com/internlink/auth-api/internal/models"
	pkgauth "github.com/internlink/auth-api/pkg/auth"
	pkglogger "github.com/internlink/auth-api/pkg/logger"
)

// UserRepository defines the user store operations the auth service needs
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// LoginGuard is the slice of the lockout guard the login pipeline reports
// outcomes to. Evaluate happens earlier, in middleware.
type LoginGuard interface {
	RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string)
	RecordSuccess(ctx context.Context, email string)
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	guard       LoginGuard
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo UserRepository, guard LoginGuard, tm *auth.TokenManager, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		repo:        repo,
		guard:       guard,
		tm:          tm,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login verifies credentials and reports the outcome to the lockout guard.
// Every credential failure is recorded against the email, including unknown
// emails: the lockout record is keyed by email, not by account, and skipping
// unknown ones would leak account existence through throttling behavior.
func (s *AuthService) Login(ctx context.Context, email, password, deviceFingerprint, userAgent string) (*AuthResponse, error) {
	start := time.Now()
	email = NormalizeEmail(email)
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	fail := func(userID, reason string) error {
		s.guard.RecordFailure(ctx, email, deviceFingerprint, userAgent)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        userID,
			Email:         email,
			UserAgent:     userAgent,
			Fingerprint:   deviceFingerprint,
			FailureReason: reason,
			Success:       false,
		})
		s.timing.WaitFrom(start, false)
		return models.ErrUnauthorized
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fail("", "invalid_credentials")
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		return nil, fail(user.ID, "account_blocked")
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, fail(user.ID, "invalid_credentials")
	}

	// Success clears any lockout state for the email
	s.guard.RecordSuccess(ctx, email)

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Email:     email,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Register creates a new account
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = NormalizeEmail(email)

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// RefreshToken exchanges a valid refresh token for a new token pair
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tm.ValidateToken(refreshToken)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		return nil, models.ErrUnauthorized
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	newRefreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// GetUser returns the profile for an authenticated user
func (s *AuthService) GetUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userModelToResponse(user), nil
}

func validateAccountState(user *models.User) error {
	switch user.Status {
	case "suspended":
		return models.ErrAccountSuspended
	case "disabled":
		return models.ErrAccountDisabled
	}
	return nil
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
