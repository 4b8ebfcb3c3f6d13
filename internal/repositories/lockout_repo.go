package repositories

import (
	"context"

	"github.com/internlink/auth-api/internal/database"
	"github.com/internlink/auth-api/internal/models"
)

// LockoutRepository is the PostgreSQL-backed lockout store. Postgres has no
// native per-record TTL, so records carry an expires_at column swept by the
// background cleanup task; the guard's staleness check covers the gap
// between sweeps.
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// Get returns the lockout record for an email, or models.ErrNotFound
func (r *LockoutRepository) Get(ctx context.Context, email string) (*models.LockoutRecord, error) {
	query := `
		SELECT email, attempts, last_attempt, locked_until, device_fingerprint, user_agent, created_at
		FROM account_lockouts
		WHERE email = $1
	`

	var rec models.LockoutRecord
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&rec.Email,
		&rec.Attempts,
		&rec.LastAttempt,
		&rec.LockedUntil,
		&rec.DeviceFingerprint,
		&rec.UserAgent,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// RecordFailure creates or increments the record in a single atomic
// increment-and-fetch, closing the read-modify-write race between concurrent
// attempts for the same email. locked_until anchors to created_at, not to
// the failing attempt's time.
func (r *LockoutRepository) RecordFailure(ctx context.Context, email, deviceFingerprint, userAgent string) (*models.LockoutRecord, error) {
	query := `
		INSERT INTO account_lockouts (email, attempts, last_attempt, device_fingerprint, user_agent, created_at, expires_at)
		VALUES ($1, 1, now(), $2, $3, now(), now() + make_interval(secs => $4))
		ON CONFLICT (email) DO UPDATE SET
			attempts           = account_lockouts.attempts + 1,
			last_attempt       = now(),
			device_fingerprint = EXCLUDED.device_fingerprint,
			user_agent         = EXCLUDED.user_agent,
			locked_until       = CASE
				WHEN account_lockouts.attempts + 1 >= $5
					THEN account_lockouts.created_at + make_interval(secs => $4)
				ELSE account_lockouts.locked_until
			END
		RETURNING email, attempts, last_attempt, locked_until, device_fingerprint, user_agent, created_at
	`

	windowSecs := int(models.LockoutWindow.Seconds())

	var rec models.LockoutRecord
	err := r.db.Pool.QueryRow(ctx, query,
		email,
		deviceFingerprint,
		userAgent,
		windowSecs,
		models.MaxFailedAttempts,
	).Scan(
		&rec.Email,
		&rec.Attempts,
		&rec.LastAttempt,
		&rec.LockedUntil,
		&rec.DeviceFingerprint,
		&rec.UserAgent,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// Delete removes the lockout record for an email. Deleting a non-existent
// record is not an error.
func (r *LockoutRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM account_lockouts WHERE email = $1`
	_, err := r.db.Pool.Exec(ctx, query, email)
	return database.MapPostgresError(err)
}

// DeleteExpired removes records past their expiry; the Postgres substitute
// for a TTL index. Returns the number of rows removed.
func (r *LockoutRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM account_lockouts WHERE expires_at <= now()`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
