package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/internlink/auth-api/internal/models"
	"github.com/internlink/auth-api/internal/services"
	pkghttp "github.com/internlink/auth-api/pkg/http"
)

type guardContextKey string

// LoginGuardContextKey stores the guard's identifiers for the verification
// layer downstream.
const LoginGuardContextKey guardContextKey = "login_guard"

// LoginGuardContext carries the normalized email and forensic identifiers
// computed when the guard lets an attempt through. The login handler hands
// these back on RecordFailure.
type LoginGuardContext struct {
	Email             string
	DeviceFingerprint string
	UserAgent         string
}

// Login bodies are small; cap the peek so a hostile body can't balloon memory
const maxLoginBodyBytes = 64 << 10

type lockedResponse struct {
	Msg             string `json:"msg"`
	TimeRemaining   int    `json:"timeRemaining"`
	Locked          bool   `json:"locked"`
	RequiresCaptcha bool   `json:"requiresCaptcha"`
}

type throttledResponse struct {
	Msg               string `json:"msg"`
	WaitTime          int    `json:"waitTime"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	RequiresCaptcha   bool   `json:"requiresCaptcha"`
}

// LoginLockoutGuard gates login attempts by email before any password check.
// It peeks at the request body for the email (restoring the body for the
// handler), asks the guard for a decision, and either writes a 429 or passes
// the request on with guard context attached.
func LoginLockoutGuard(guard *services.LockoutService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodyBytes))
			if err != nil {
				pkghttp.WriteBadRequest(w, "Invalid request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var probe struct {
				Email string `json:"email"`
			}
			_ = json.Unmarshal(body, &probe)

			// No email: nothing to key on; the handler's own validation
			// produces the error response.
			if probe.Email == "" {
				next.ServeHTTP(w, r)
				return
			}

			decision := guard.Evaluate(r.Context(), probe.Email)
			switch decision.Outcome {
			case models.LockoutLocked:
				pkghttp.WriteJSON(w, http.StatusTooManyRequests, lockedResponse{
					Msg: fmt.Sprintf(
						"Account temporarily locked due to too many failed attempts. Try again in %d minute(s).",
						decision.TimeRemainingMinutes),
					TimeRemaining:   decision.TimeRemainingSeconds,
					Locked:          true,
					RequiresCaptcha: true,
				})
				return
			case models.LockoutThrottled:
				pkghttp.WriteJSON(w, http.StatusTooManyRequests, throttledResponse{
					Msg: fmt.Sprintf(
						"Too many attempts. Please wait %d second(s) before trying again.",
						decision.WaitSeconds),
					WaitTime:          decision.WaitSeconds,
					AttemptsRemaining: decision.AttemptsRemaining,
					RequiresCaptcha:   decision.RequiresCaptcha,
				})
				return
			}

			gc := LoginGuardContext{
				Email: services.NormalizeEmail(probe.Email),
				DeviceFingerprint: services.DeviceFingerprint(
					r.Header.Get("User-Agent"),
					r.Header.Get("Accept-Language"),
					r.Header.Get("Accept-Encoding"),
				),
				UserAgent: r.Header.Get("User-Agent"),
			}
			ctx := context.WithValue(r.Context(), LoginGuardContextKey, gc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GuardFromContext returns the guard context attached by LoginLockoutGuard
func GuardFromContext(r *http.Request) (LoginGuardContext, bool) {
	gc, ok := r.Context().Value(LoginGuardContextKey).(LoginGuardContext)
	return gc, ok
}
