package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims are the claims carried by provider-issued access tokens
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email,omitempty"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// JWTAuthenticator validates HS256 access tokens signed with a shared secret
type JWTAuthenticator struct {
	secret   []byte
	audience string
}

// NewJWTAuthenticator creates an authenticator for the given secret.
// When audience is non-empty the aud claim must contain it.
func NewJWTAuthenticator(secret []byte, audience string) (*JWTAuthenticator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &JWTAuthenticator{secret: secret, audience: audience}, nil
}

// Authenticate returns the user identified by the token's subject
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &AccessTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}

	return &User{
		ID:             claims.Subject,
		Email:          claims.Email,
		FullName:       metadataString(claims.UserMetadata, "full_name"),
		AvatarURL:      metadataString(claims.UserMetadata, "avatar_url"),
		EmailConfirmed: true,
		Metadata:       claims.UserMetadata,
	}, nil
}
