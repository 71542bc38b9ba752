package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/observability"
)

// RateLimit is a per-key request budget
type RateLimit struct {
	// Requests is the max requests allowed in one window
	Requests int
	// Window is the time window the budget applies to
	Window time.Duration
}

// BulkRateLimit returns the budget for bulk provisioning requests
func BulkRateLimit(perMinute int) RateLimit {
	return RateLimit{Requests: perMinute, Window: time.Minute}
}

// LimitResult is the outcome of one Allow call
type LimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

// MemoryLimiter is a token bucket per key. Limits are not shared between
// instances; use RedisLimiter when more than one replica serves traffic.
type MemoryLimiter struct {
	limit    RateLimit
	limiters sync.Map
}

// NewMemoryLimiter creates an in-process limiter. The bucket refills evenly
// over the window and holds at most limit.Requests tokens.
func NewMemoryLimiter(limit RateLimit) *MemoryLimiter {
	return &MemoryLimiter{limit: limit}
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	every := rate.Every(l.limit.Window / time.Duration(l.limit.Requests))
	v, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(every, l.limit.Requests))
	return v.(*rate.Limiter)
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	limiter := l.bucket(key)
	now := time.Now()

	res := limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return LimitResult{Limit: l.limit.Requests, RetryAfter: delay}, nil
	}

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return LimitResult{Allowed: true, Limit: l.limit.Requests, Remaining: remaining}, nil
}

// RateLimitMiddleware applies a Limiter to the acting user of each request
type RateLimitMiddleware struct {
	limiter Limiter
	logger  *observability.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. It must run
// after AuthMiddleware; unauthenticated requests are keyed by client address.
func NewRateLimitMiddleware(limiter Limiter, logger *observability.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Handler wraps an HTTP handler with rate limiting. A limiter error lets the
// request through.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if userID := ActingUserID(r); userID != "" {
			key = "user:" + userID
		}

		res, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context(), m.logger).WithError(err).
				WithField("key", key).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Round(time.Second) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.RetryAfter).Unix(), 10))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP uses the connection address; forwarding headers are not trusted
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
