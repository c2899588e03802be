package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager(secret, "", time.Hour)

	token, expiresAt, err := m.GenerateToken("u1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "notifly", claims.Issuer)
}

func TestManager_RejectsForeignSecret(t *testing.T) {
	token, _, err := NewManager(secret, "", time.Hour).GenerateToken("u1", "")
	require.NoError(t, err)

	_, err = NewManager("another-secret-another-secret-xx", "", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RejectsWrongIssuer(t *testing.T) {
	token, _, err := NewManager(secret, "other", time.Hour).GenerateToken("u1", "")
	require.NoError(t, err)

	_, err = NewManager(secret, "notifly", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m := NewManager(secret, "", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.GenerateToken("u1", "")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_Garbage(t *testing.T) {
	_, err := NewManager(secret, "", time.Hour).ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
