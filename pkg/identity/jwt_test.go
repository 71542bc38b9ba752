package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret []byte, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestJWTAuthenticator(t *testing.T) {
	secret := []byte("super-secret")
	auth, err := NewJWTAuthenticator(secret, "authenticated")
	require.NoError(t, err)

	valid := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:        "user@example.com",
		UserMetadata: map[string]interface{}{"full_name": "Jo User"},
	}

	t.Run("valid token", func(t *testing.T) {
		u, err := auth.Authenticate(context.Background(), signHS256(t, secret, valid))
		require.NoError(t, err)
		assert.Equal(t, "user-1", u.ID)
		assert.Equal(t, "user@example.com", u.Email)
		assert.Equal(t, "Jo User", u.FullName)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), signHS256(t, []byte("other"), valid))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		expired := valid
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := auth.Authenticate(context.Background(), signHS256(t, secret, expired))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := valid
		other.Audience = jwt.ClaimStrings{"anon"}
		_, err := auth.Authenticate(context.Background(), signHS256(t, secret, other))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("missing subject", func(t *testing.T) {
		noSub := valid
		noSub.Subject = ""
		_, err := auth.Authenticate(context.Background(), signHS256(t, secret, noSub))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.Authenticate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestNewJWTAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewJWTAuthenticator(nil, "")
	assert.Error(t, err)
}
