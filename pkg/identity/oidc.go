package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator verifies OpenID Connect ID tokens
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDCAuthenticator discovers the issuer and builds a verifier for clientID
func NewOIDCAuthenticator(ctx context.Context, issuerURL, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return NewOIDCAuthenticatorFromVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCAuthenticatorFromVerifier wraps an existing verifier
func NewOIDCAuthenticatorFromVerifier(verifier *oidc.IDTokenVerifier) *OIDCAuthenticator {
	return &OIDCAuthenticator{verifier: verifier}
}

// Authenticate verifies the ID token and maps its claims to a User
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	return &User{
		ID:             idToken.Subject,
		Email:          claims.Email,
		FullName:       claims.Name,
		AvatarURL:      claims.Picture,
		EmailConfirmed: claims.EmailVerified,
	}, nil
}
