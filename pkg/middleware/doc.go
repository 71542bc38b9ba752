// Package middleware provides the HTTP middleware that resolves the acting
// user and limits how often a caller may start bulk provisioning.
//
// # Authentication
//
// AuthMiddleware reads "Authorization: Bearer <token>", resolves it through an
// identity.Authenticator and stores both the identity and its id in the
// request context. Handlers read the actor with ActingUserID:
//
//	auth := middleware.NewAuthMiddleware(authenticator, logger)
//	router.Use(auth.Handler)
//
// A missing or rejected token is answered with 401 before any handler runs.
//
// # Rate Limiting
//
// Each bulk request can fan out to dozens of identity provider calls, so the
// bulk route is limited per acting user:
//
//	limiter := middleware.NewRedisLimiter(redisClient, middleware.BulkRateLimit(10), "tenantd:ratelimit:bulk")
//	bulk := middleware.NewRateLimitMiddleware(limiter, logger).Handler(bulkHandler)
//
// NewMemoryLimiter is the single-instance alternative when Redis is not
// configured. Rejected requests get 429 with Retry-After and X-RateLimit-*
// headers. When Redis is unreachable the request is let through and a warning
// is logged.
package middleware
