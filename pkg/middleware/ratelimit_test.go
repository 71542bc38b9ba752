package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantd/pkg/contextkeys"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func withActor(r *http.Request, userID string) *http.Request {
	return r.WithContext(contextkeys.WithActingUserID(r.Context(), userID))
}

func TestRedisLimiter_Allow(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, RateLimit{Requests: 3, Window: time.Minute}, "test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "user:a")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)

	other, err := limiter.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	assert.True(t, mr.Exists("test:user:a"))
	mr.FastForward(time.Minute + time.Second)
	res, err = limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window reset")
}

func TestRedisLimiter_WindowNotExtended(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, RateLimit{Requests: 10, Window: time.Minute}, "test")
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = limiter.Allow(ctx, "user:a")
	require.NoError(t, err)

	ttl, err := limiter.TTL(ctx, "user:a")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 20*time.Second)
}

func TestRedisLimiter_Reset(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, RateLimit{Requests: 1, Window: time.Minute}, "")
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	res, err := limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "user:a"))
	res, err = limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, BulkRateLimit(10), "test")
	mr.Close()

	_, err := limiter.Allow(context.Background(), "user:a")
	assert.Error(t, err)
}

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter(RateLimit{Requests: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "user:a")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.InDelta(t, 30*time.Second, res.RetryAfter, float64(time.Second))

	res, err = limiter.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (LimitResult, error) {
	return LimitResult{}, errors.New("connection refused")
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewRedisLimiter(client, RateLimit{Requests: 2, Window: time.Minute}, "test")

	calls := 0
	handler := NewRateLimitMiddleware(limiter, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/tenants/t/members/bulk", nil)
		if userID != "" {
			req = withActor(req, userID)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := serve("alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve("alice").Code)

	w = serve("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retryAfter, 1)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, w.Body.String(), `"error":"rate_limited"`)

	assert.Equal(t, http.StatusOK, serve("bob").Code, "limits are per acting user")
	assert.Equal(t, http.StatusOK, serve("").Code, "anonymous callers use the client address")
	assert.Equal(t, 4, calls)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	called := false
	handler := NewRateLimitMiddleware(brokenLimiter{}, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withActor(httptest.NewRequest(http.MethodPost, "/", nil), "alice"))

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(req))
}
