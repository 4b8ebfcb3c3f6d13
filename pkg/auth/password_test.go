package auth_test

import (
	"testing"

	"github.com/internlink/auth-api/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := auth.HashPassword("CorrectHorse1")
	require.NoError(t, err)
	assert.NotEqual(t, "CorrectHorse1", hash)

	assert.NoError(t, auth.ComparePassword(hash, "CorrectHorse1"))
	assert.Error(t, auth.ComparePassword(hash, "WrongHorse1"))
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	_, err := auth.HashPassword("")
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "ValidPass99", false},
		{"too short", "Ab1", true},
		{"no digits", "OnlyLettersHere", true},
		{"no letters", "1234567890", true},
		{"common password", "password1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			if tt.wantErr {
				var pve *auth.PasswordValidationError
				require.ErrorAs(t, err, &pve)
				assert.NotEmpty(t, pve.Errors)
				// Specific requirements stay out of the public message
				assert.Equal(t, "invalid password", pve.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
