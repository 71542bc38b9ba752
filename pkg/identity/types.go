package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no identity matches the lookup
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyExists is returned when creating an identity for a taken email
	ErrAlreadyExists = errors.New("identity already exists")
	// ErrUnauthenticated is returned when a token cannot be resolved to a user
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTimeout is returned when the provider did not answer in time
	ErrTimeout = errors.New("identity provider timed out")
)

// User is an identity as known to the identity provider
type User struct {
	ID             string                 `json:"id"`
	Email          string                 `json:"email"`
	FullName       string                 `json:"full_name,omitempty"`
	AvatarURL      string                 `json:"avatar_url,omitempty"`
	EmailConfirmed bool                   `json:"email_confirmed"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CreateRequest describes a new identity
type CreateRequest struct {
	Email        string
	Password     string
	EmailConfirm bool
	Metadata     map[string]interface{}
}

// Provider manages identities in the external identity system
type Provider interface {
	// GetIdentity returns the identity with the given id or ErrNotFound
	GetIdentity(ctx context.Context, id string) (*User, error)

	// LookupByEmail returns the identity for an email or ErrNotFound
	LookupByEmail(ctx context.Context, email string) (*User, error)

	// CreateIdentity creates a new identity
	CreateIdentity(ctx context.Context, req CreateRequest) (*User, error)

	// DeleteIdentity removes an identity
	DeleteIdentity(ctx context.Context, id string) error
}

// Inviter delivers invitations to join a tenant
type Inviter interface {
	SendInvitation(ctx context.Context, email, redirectURL string, metadata map[string]interface{}) error
}

// Authenticator resolves a bearer token into the acting user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

// NormalizeEmail lower-cases and trims an email for comparison and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// metadataString reads a string value from provider metadata
func metadataString(md map[string]interface{}, key string) string {
	if md == nil {
		return ""
	}
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}
