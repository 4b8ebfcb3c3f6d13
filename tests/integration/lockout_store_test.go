package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/internlink/auth-api/internal/models"
	"github.com/internlink/auth-api/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLockoutRepo(t *testing.T) (*repositories.LockoutRepository, *TestDB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Teardown(context.Background())
	})

	return repositories.NewLockoutRepository(testDB.DB), testDB
}

func TestLockoutRepository_GetMissingReturnsNotFound(t *testing.T) {
	repo, _ := setupLockoutRepo(t)

	_, err := repo.Get(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLockoutRepository_RecordFailureCreatesThenIncrements(t *testing.T) {
	repo, _ := setupLockoutRepo(t)
	ctx := context.Background()

	first, err := repo.RecordFailure(ctx, "user@example.com", "fp-1", "Mozilla/5.0")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempts)
	assert.Nil(t, first.LockedUntil)

	second, err := repo.RecordFailure(ctx, "user@example.com", "fp-2", "curl/8.0")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempts)
	assert.Nil(t, second.LockedUntil)

	// Forensic fields track the most recent attempt
	assert.Equal(t, "fp-2", second.DeviceFingerprint)
	assert.Equal(t, "curl/8.0", second.UserAgent)

	// created_at stays anchored at the first failure
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Millisecond)
}

func TestLockoutRepository_FifthFailureSetsLockAnchoredAtCreation(t *testing.T) {
	repo, _ := setupLockoutRepo(t)
	ctx := context.Background()

	var rec *models.LockoutRecord
	var err error
	for i := 0; i < models.MaxFailedAttempts; i++ {
		rec, err = repo.RecordFailure(ctx, "user@example.com", "fp", "ua")
		require.NoError(t, err)
	}

	require.Equal(t, models.MaxFailedAttempts, rec.Attempts)
	require.NotNil(t, rec.LockedUntil)
	assert.WithinDuration(t, rec.CreatedAt.Add(models.LockoutWindow), *rec.LockedUntil, time.Millisecond)
}

func TestLockoutRepository_ConcurrentFailuresLoseNoIncrements(t *testing.T) {
	repo, _ := setupLockoutRepo(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = repo.RecordFailure(ctx, "user@example.com", "fp", "ua")
		}()
	}
	wg.Wait()

	rec, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, workers, rec.Attempts)
}

func TestLockoutRepository_DeleteIsIdempotent(t *testing.T) {
	repo, _ := setupLockoutRepo(t)
	ctx := context.Background()

	_, err := repo.RecordFailure(ctx, "user@example.com", "fp", "ua")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "user@example.com"))
	require.NoError(t, repo.Delete(ctx, "user@example.com"))

	_, err = repo.Get(ctx, "user@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLockoutRepository_DeleteExpiredSweepsOldRecords(t *testing.T) {
	repo, testDB := setupLockoutRepo(t)
	ctx := context.Background()

	_, err := repo.RecordFailure(ctx, "stale@example.com", "fp", "ua")
	require.NoError(t, err)
	_, err = repo.RecordFailure(ctx, "fresh@example.com", "fp", "ua")
	require.NoError(t, err)

	require.NoError(t, BackdateLockout(ctx, testDB.Pool, "stale@example.com", 16*time.Minute))

	removed, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Get(ctx, "stale@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.Get(ctx, "fresh@example.com")
	assert.NoError(t, err)
}
