package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/internlink/auth-api/internal/middleware"
	"github.com/internlink/auth-api/internal/models"
	"github.com/internlink/auth-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLockoutStore is a minimal in-memory LockoutStore
type memoryLockoutStore struct {
	records map[string]*models.LockoutRecord
}

func newMemoryLockoutStore() *memoryLockoutStore {
	return &memoryLockoutStore{records: make(map[string]*models.LockoutRecord)}
}

func (m *memoryLockoutStore) Get(ctx context.Context, email string) (*models.LockoutRecord, error) {
	rec, ok := m.records[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

func (m *memoryLockoutStore) RecordFailure(ctx context.Context, email, fp, ua string) (*models.LockoutRecord, error) {
	now := time.Now()
	rec, ok := m.records[email]
	if !ok {
		rec = &models.LockoutRecord{Email: email, Attempts: 1, LastAttempt: now, CreatedAt: now}
		m.records[email] = rec
		return rec, nil
	}
	rec.Attempts++
	rec.LastAttempt = now
	return rec, nil
}

func (m *memoryLockoutStore) Delete(ctx context.Context, email string) error {
	delete(m.records, email)
	return nil
}

func (m *memoryLockoutStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func newGuardHandler(store services.LockoutStore, next http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	service := services.NewLockoutService(store, nil, logger)
	return middleware.LoginLockoutGuard(service)(next)
}

func loginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	return req
}

func TestLoginLockoutGuard_CleanAttemptPassesWithGuardContext(t *testing.T) {
	store := newMemoryLockoutStore()

	var gotCtx middleware.LoginGuardContext
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtx, gotOK = middleware.GuardFromContext(r)
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(`{"email":"User@Example.com","password":"x"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, gotOK)
	assert.Equal(t, "user@example.com", gotCtx.Email)
	assert.Equal(t, "Mozilla/5.0", gotCtx.UserAgent)
	assert.Len(t, gotCtx.DeviceFingerprint, 32)
}

func TestLoginLockoutGuard_RestoresBodyForHandler(t *testing.T) {
	store := newMemoryLockoutStore()
	body := `{"email":"user@example.com","password":"secret123"}`

	var handlerBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		handlerBody = string(b)
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(body))

	assert.Equal(t, body, handlerBody)
}

func TestLoginLockoutGuard_MissingEmailPassesThrough(t *testing.T) {
	store := newMemoryLockoutStore()

	var reached bool
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		_, gotOK = middleware.GuardFromContext(r)
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(`{"password":"x"}`))

	assert.True(t, reached)
	assert.False(t, gotOK)
}

func TestLoginLockoutGuard_ThrottledResponseShape(t *testing.T) {
	store := newMemoryLockoutStore()
	now := time.Now()
	store.records["user@example.com"] = &models.LockoutRecord{
		Email:       "user@example.com",
		Attempts:    3,
		LastAttempt: now,
		CreatedAt:   now,
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached while throttled")
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(`{"email":"user@example.com","password":"x"}`))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	var resp struct {
		Msg               string `json:"msg"`
		WaitTime          int    `json:"waitTime"`
		AttemptsRemaining int    `json:"attemptsRemaining"`
		RequiresCaptcha   bool   `json:"requiresCaptcha"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	// Attempt 4 after three failures requires a 20 second wait
	assert.Equal(t, 20, resp.WaitTime)
	assert.Equal(t, 2, resp.AttemptsRemaining)
	assert.True(t, resp.RequiresCaptcha)
	assert.Contains(t, resp.Msg, "wait 20 second(s)")
}

func TestLoginLockoutGuard_LockedResponseShape(t *testing.T) {
	store := newMemoryLockoutStore()
	now := time.Now()
	createdAt := now.Add(-5 * time.Minute)
	lockedUntil := createdAt.Add(models.LockoutWindow)
	store.records["user@example.com"] = &models.LockoutRecord{
		Email:       "user@example.com",
		Attempts:    5,
		LastAttempt: now,
		LockedUntil: &lockedUntil,
		CreatedAt:   createdAt,
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached while locked")
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(`{"email":"user@example.com","password":"x"}`))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	var resp struct {
		Msg             string `json:"msg"`
		TimeRemaining   int    `json:"timeRemaining"`
		Locked          bool   `json:"locked"`
		RequiresCaptcha bool   `json:"requiresCaptcha"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.True(t, resp.Locked)
	assert.True(t, resp.RequiresCaptcha)
	assert.InDelta(t, 600, resp.TimeRemaining, 2)
	assert.Contains(t, resp.Msg, "10 minute(s)")
}

func TestLoginLockoutGuard_MalformedBodyPassesThrough(t *testing.T) {
	store := newMemoryLockoutStore()

	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})

	rr := httptest.NewRecorder()
	newGuardHandler(store, next).ServeHTTP(rr, loginRequest(`not json at all`))

	// The handler's own decoding produces the validation error
	assert.True(t, reached)
}
