package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/internlink/auth-api/internal/auth"
	"github.com/internlink/auth-api/internal/middleware"
	"github.com/internlink/auth-api/internal/models"
	"github.com/internlink/auth-api/internal/services"
	pkgauth "github.com/internlink/auth-api/pkg/auth"
	pkghttp "github.com/internlink/auth-api/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, deviceFingerprint, userAgent string) (*services.AuthResponse, error)
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	GetUser(ctx context.Context, userID string) (*services.UserResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles user login. The lockout guard middleware has already let
// this attempt through and attached the identifiers the service reports
// back on failure.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	gc, ok := middleware.GuardFromContext(r)
	if !ok {
		// Route mounted without the guard; compute identifiers here so
		// failures are still recorded.
		gc = middleware.LoginGuardContext{
			Email: services.NormalizeEmail(req.Email),
			DeviceFingerprint: services.DeviceFingerprint(
				r.Header.Get("User-Agent"),
				r.Header.Get("Accept-Language"),
				r.Header.Get("Accept-Encoding"),
			),
			UserAgent: r.Header.Get("User-Agent"),
		}
	}

	authResp, err := h.service.Login(r.Context(), gc.Email, req.Password, gc.DeviceFingerprint, gc.UserAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Register handles user registration. Conflicts and policy failures get the
// same generic reply as success, to prevent account enumeration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	genericReply := map[string]string{
		"message": "Registration received. If the email is not already registered, you will be able to sign in shortly.",
	}

	_, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		var pve *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pve):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrConflict):
			// Same reply as success, to prevent account enumeration
			pkghttp.WriteJSON(w, http.StatusAccepted, genericReply)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, genericReply)
}

// RefreshToken handles token refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}
