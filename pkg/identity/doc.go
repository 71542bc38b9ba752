// Package identity defines the identity-provider collaborator used by the
// membership engine and ships the adapters that talk to real providers.
//
// Provider covers identity lookup, creation and deletion. Inviter delivers
// invitation messages. Authenticator resolves the acting user from a bearer
// token (the "current user" of a request).
//
// Adapters:
//
//	AdminClient        GoTrue-compatible admin REST API (Provider + Inviter)
//	JWTAuthenticator   HS256 access tokens signed with the provider's JWT secret
//	OIDCAuthenticator  OpenID Connect ID tokens verified against the issuer's JWKS
//	SMTPInviter        invitation e-mails over SMTP
//	MemoryProvider     in-process provider for tests and local development
//
// WithTimeout bounds every provider call so a hung upstream surfaces as a
// failure instead of blocking the caller.
package identity
