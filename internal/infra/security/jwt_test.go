package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	j, err := NewJWT("secret", "petchat")
	require.NoError(t, err)

	token, err := j.Sign("user-1", "Bob", time.Hour)
	require.NoError(t, err)

	claims, err := j.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Bob", claims.Name)
}

func TestParseRejects(t *testing.T) {
	j, err := NewJWT("secret", "petchat")
	require.NoError(t, err)
	other, err := NewJWT("other", "petchat")
	require.NoError(t, err)
	foreign, err := NewJWT("secret", "someone-else")
	require.NoError(t, err)

	expired, err := j.Sign("user-1", "", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.Sign("user-1", "", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreign.Sign("user-1", "", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := j.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	_, err := NewJWT(" ", "")
	assert.Error(t, err)
}
