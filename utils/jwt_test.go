package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditmgt/validation"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.GenerateJWT("65a1b2c3d4e5f60718293a4b", "Jane Doe", "jane@example.com")
	require.NoError(t, err)

	claims, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "65a1b2c3d4e5f60718293a4b", claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)
	other := NewTokenIssuer([]byte("another-secret"), time.Hour)

	foreign, err := other.GenerateJWT("u1", "X", "x@example.com")
	require.NoError(t, err)
	_, err = issuer.ValidateJWT(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenIssuer([]byte("test-secret"), time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.GenerateJWT("u1", "X", "x@example.com")
	require.NoError(t, err)
	_, err = issuer.ValidateJWT(stale)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ValidateJWT("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	PasswordCost = 4
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("hunter23", hash))
}

func TestRespondWithValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithValidation(rec, validation.Errors{{Path: "auditName", Message: "Audit name is required"}})

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Invalid data","details":[{"path":"auditName","message":"Audit name is required"}]}`, rec.Body.String())
}
