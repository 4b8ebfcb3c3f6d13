package models

import "time"

// Lockout policy constants. These are deliberately not configuration: the
// thresholds are part of the guard's contract with its clients and tests.
const (
	// MaxFailedAttempts is the consecutive-failure count at which an
	// account hard-locks.
	MaxFailedAttempts = 5

	// LockoutWindow bounds both the record's lifetime and the hard lock,
	// anchored at record creation time.
	LockoutWindow = 15 * time.Minute
)

// LockoutRecord tracks consecutive failed login attempts for one email.
// At most one record exists per normalized (lower-cased) email. The record
// self-expires 15 minutes after creation; attempts only grow and are reset
// exclusively by deleting the record.
type LockoutRecord struct {
	Email             string     `db:"email" bson:"email"`
	Attempts          int        `db:"attempts" bson:"attempts"`
	LastAttempt       time.Time  `db:"last_attempt" bson:"last_attempt"`
	LockedUntil       *time.Time `db:"locked_until" bson:"locked_until,omitempty"`
	DeviceFingerprint string     `db:"device_fingerprint" bson:"device_fingerprint"`
	UserAgent         string     `db:"user_agent" bson:"user_agent"`
	CreatedAt         time.Time  `db:"created_at" bson:"created_at"`
}

// LockoutOutcome classifies the guard's decision for a login attempt.
type LockoutOutcome int

const (
	// LockoutProceed allows the attempt through to credential verification.
	LockoutProceed LockoutOutcome = iota
	// LockoutThrottled rejects the attempt until the progressive delay elapses.
	LockoutThrottled
	// LockoutLocked rejects the attempt because the account is hard-locked.
	LockoutLocked
)

// LockoutDecision is the guard's verdict for a single login attempt.
// Throttled and Locked decisions are deterministic outcomes, not errors;
// they carry the wait arithmetic the HTTP layer reports to the client.
type LockoutDecision struct {
	Outcome LockoutOutcome

	// Throttled only
	WaitSeconds       int
	AttemptsRemaining int

	// Locked only
	TimeRemainingSeconds int
	TimeRemainingMinutes int

	RequiresCaptcha bool
}
