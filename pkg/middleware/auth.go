package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/contextkeys"
	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/identity"
	"github.com/platinummonkey/tenantd/pkg/observability"
)

// AuthMiddleware resolves the bearer token of every request to the acting user
type AuthMiddleware struct {
	authenticator identity.Authenticator
	logger        *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator identity.Authenticator, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// Handler wraps an HTTP handler with authentication. Requests without a
// resolvable identity are answered with 401 and never reach next.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			httputil.WriteAppError(w, apperr.Unauthenticated("missing or malformed bearer token"))
			return
		}

		user, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			logger := observability.FromContext(r.Context(), m.logger).WithError(err)
			if errors.Is(err, identity.ErrUnauthenticated) || errors.Is(err, identity.ErrNotFound) {
				logger.Debug("Rejected bearer token")
				httputil.WriteAppError(w, apperr.Unauthenticated("invalid or expired token"))
				return
			}
			logger.Error("Authenticator failed")
			httputil.WriteAppError(w, apperr.Upstream("failed to authenticate request", err))
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), user)
		ctx = contextkeys.WithActingUserID(ctx, user.ID)
		ctx = observability.WithLogger(ctx, observability.GetLogger(ctx, m.logger).WithField("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActingUserID returns the id of the authenticated caller, or "" when the
// request did not pass through AuthMiddleware
func ActingUserID(r *http.Request) string {
	return contextkeys.GetActingUserID(r.Context())
}

// CurrentUser returns the authenticated identity, if any
func CurrentUser(r *http.Request) *identity.User {
	user, _ := r.Context().Value(contextkeys.IdentityKey).(*identity.User)
	return user
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
