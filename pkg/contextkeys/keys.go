// Package contextkeys holds every context key tenantd stores request state under.
//
// Keeping them in one package avoids import cycles between middleware,
// the HTTP handlers and observability:
//
//	ctx = contextkeys.WithActingUserID(ctx, claims.Subject)
//	actor := contextkeys.GetActingUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the authenticated *identity.User.
	// Set by middleware.Authenticate.
	IdentityKey Key = "identity"

	// ActingUserIDKey contains the authenticated caller's user id (string).
	// Set by middleware.Authenticate; every engine call takes it as the actor.
	ActingUserIDKey Key = "acting_user_id"

	// RequestIDKey contains the request id (string)
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity stores the authenticated identity
func WithIdentity(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, user)
}

// WithActingUserID stores the caller's user id
func WithActingUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ActingUserIDKey, userID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetActingUserID returns the caller's user id, or "" when unauthenticated
func GetActingUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(ActingUserIDKey).(string); ok {
		return userID
	}
	return ""
}
