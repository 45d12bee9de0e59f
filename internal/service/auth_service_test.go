package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/internal/config"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/hash"
	"baria-go/pkg/token"
)

func newTestAuth(t *testing.T) AuthService {
	t.Helper()
	h, err := hash.HashPassword("s3cret")
	require.NoError(t, err)
	return NewAuthService([]config.AdminConfig{
		{Username: "admin", PasswordHash: h},
		{Username: "nohash"},
	}, token.NewJWTManager("test-secret", 1, 1))
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestAuth(t)

	pair, err := svc.Login("admin", "s3cret")
	require.NoError(t, err)
	claims, err := svc.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = svc.Verify(pair.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "refresh tokens are not access tokens")
}

func TestLoginRejects(t *testing.T) {
	svc := newTestAuth(t)
	for _, tc := range []struct{ user, pass string }{
		{"admin", "wrong"},
		{"ghost", "s3cret"},
		{"nohash", ""},
	} {
		_, err := svc.Login(tc.user, tc.pass)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized, tc.user)
		assert.Equal(t, 401, apperrors.HTTPStatusCode(err))
	}
}

func TestRefresh(t *testing.T) {
	svc := newTestAuth(t)
	pair, err := svc.Login("admin", "s3cret")
	require.NoError(t, err)

	next, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Verify(next.AccessToken)
	assert.NoError(t, err)

	_, err = svc.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Refresh("garbage")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
