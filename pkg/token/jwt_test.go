package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	tok, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "ADMIN", claims.Role)

	_, err = m.VerifyToken(tok, TypeRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("one", 1, 1).GenerateRefreshToken("admin", "ADMIN")
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1, 1).VerifyToken(tok, TypeRefresh)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 0, 0)
	tok, err := m.GenerateToken("admin", "ADMIN")
	require.NoError(t, err)
	_, err = m.VerifyToken(tok, TypeAccess)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewJWTManager("secret", 1, 1).VerifyToken("not.a.jwt", TypeAccess)
	assert.Error(t, err)
}
