package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/internlink/auth-api/internal/models"
	pkglogger "github.com/internlink/auth-api/pkg/logger"
)

// LockoutStore defines the persistence contract for lockout records.
// Get returns models.ErrNotFound when no record exists for the email.
// RecordFailure creates the record on first failure, otherwise increments it,
// and returns the post-increment state. Delete is idempotent.
type LockoutStore interface {
	Get(ctx context.Context, email string) (*models.LockoutRecord, error)
	RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string) (*models.LockoutRecord, error)
	Delete(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// LockoutNotifier sends a security notice when an account hard-locks
type LockoutNotifier interface {
	SendLockNotice(ctx context.Context, email string, lockedUntil time.Time) error
}

// The lockout policy lives in models so the store backends can share it.
const (
	MaxFailedAttempts = models.MaxFailedAttempts
	LockoutWindow     = models.LockoutWindow
)

// progressiveDelays is keyed by the attempt number about to be made
// (1-indexed): the minimum time that must separate it from the previous
// failure.
var progressiveDelays = [MaxFailedAttempts + 1]time.Duration{
	1: 0,
	2: 2 * time.Second,
	3: 5 * time.Second,
	4: 20 * time.Second,
	5: 120 * time.Second,
}

// GetProgressiveDelay returns the delay required before the given attempt
// number. Attempts at or past the lock threshold keep the maximum delay.
func GetProgressiveDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= MaxFailedAttempts {
		return progressiveDelays[MaxFailedAttempts]
	}
	return progressiveDelays[attempt]
}

// LockoutService gates login attempts per email, before any password check.
// All state lives in the store, so horizontally scaled instances share
// lockout state without coordination.
type LockoutService struct {
	store    LockoutStore
	notifier LockoutNotifier
	logger   *slog.Logger
}

// NewLockoutService creates a new LockoutService. notifier may be nil.
func NewLockoutService(store LockoutStore, notifier LockoutNotifier, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Evaluate decides whether a login attempt for email may proceed.
// It never returns an error: store failures are logged and collapse to
// Proceed, because an outage in the lockout store must not become a
// site-wide login outage.
func (s *LockoutService) Evaluate(ctx context.Context, email string) models.LockoutDecision {
	proceed := models.LockoutDecision{Outcome: models.LockoutProceed}

	email = NormalizeEmail(email)
	if email == "" {
		return proceed
	}

	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("lockout store read failed, allowing attempt",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
		return proceed
	}

	now := time.Now()

	// The store's own TTL sweep may lag; purge stale records here so the
	// guard's correctness does not depend on it. Staleness overrides any
	// accumulated throttle or lock state.
	if now.Sub(rec.CreatedAt) > LockoutWindow {
		if err := s.store.Delete(ctx, email); err != nil {
			s.logger.Error("failed to purge stale lockout record",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
		return proceed
	}

	if rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		secs := ceilSeconds(rec.LockedUntil.Sub(now))
		return models.LockoutDecision{
			Outcome:              models.LockoutLocked,
			TimeRemainingSeconds: secs,
			TimeRemainingMinutes: (secs + 59) / 60,
			RequiresCaptcha:      true,
		}
	}

	// rec.Attempts counts completed failures; the attempt in progress is
	// number rec.Attempts+1, so that is the delay that applies.
	requiredDelay := GetProgressiveDelay(rec.Attempts + 1)
	if elapsed := now.Sub(rec.LastAttempt); elapsed < requiredDelay {
		remaining := MaxFailedAttempts - rec.Attempts
		if remaining < 0 {
			remaining = 0
		}
		return models.LockoutDecision{
			Outcome:           models.LockoutThrottled,
			WaitSeconds:       ceilSeconds(requiredDelay - elapsed),
			AttemptsRemaining: remaining,
			RequiresCaptcha:   rec.Attempts >= 3,
		}
	}

	return proceed
}

// RecordFailure reports a failed credential check back to the guard.
// Store errors are logged and swallowed: a failed audit write must not
// change the login's outcome.
func (s *LockoutService) RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string) {
	email = NormalizeEmail(email)
	if email == "" {
		return
	}

	rec, err := s.store.RecordFailure(ctx, email, deviceFingerprint, userAgent)
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return
	}

	if rec.Attempts < MaxFailedAttempts {
		return
	}

	s.logger.Warn("account locked after repeated failures",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Int("attempts", rec.Attempts),
		slog.String("device_fingerprint", rec.DeviceFingerprint))

	// Notify only on the transition into the locked state
	if rec.Attempts == MaxFailedAttempts && rec.LockedUntil != nil && s.notifier != nil {
		if err := s.notifier.SendLockNotice(ctx, email, *rec.LockedUntil); err != nil {
			s.logger.Error("failed to send lock notice",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.Any("error", err))
		}
	}
}

// RecordSuccess reports a successful login, clearing any lockout state for
// the email. Clearing an email with no record is not an error.
func (s *LockoutService) RecordSuccess(ctx context.Context, email string) {
	email = NormalizeEmail(email)
	if email == "" {
		return
	}

	if err := s.store.Delete(ctx, email); err != nil {
		s.logger.Error("failed to clear lockout record",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}
}

// NormalizeEmail lower-cases and trims an email; this is the lookup key for
// all lockout state.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeviceFingerprint hashes the identifying request headers into an opaque
// string stored for forensics. It never participates in the lock decision.
func DeviceFingerprint(userAgent, acceptLanguage, acceptEncoding string) string {
	data := []byte(fmt.Sprintf("%s|%s|%s", userAgent, acceptLanguage, acceptEncoding))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
