package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single identity-provider call
const DefaultTimeout = 10 * time.Second

// timeoutProvider bounds every call of the wrapped provider
type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout wraps a provider so that each call fails with ErrTimeout once
// the timeout elapses, even if the underlying client ignores its context.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutProvider{next: p, timeout: timeout}
}

func (t *timeoutProvider) GetIdentity(ctx context.Context, id string) (*User, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*User, error) {
		return t.next.GetIdentity(ctx, id)
	})
}

func (t *timeoutProvider) LookupByEmail(ctx context.Context, email string) (*User, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*User, error) {
		return t.next.LookupByEmail(ctx, email)
	})
}

func (t *timeoutProvider) CreateIdentity(ctx context.Context, req CreateRequest) (*User, error) {
	return callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*User, error) {
		return t.next.CreateIdentity(ctx, req)
	})
}

func (t *timeoutProvider) DeleteIdentity(ctx context.Context, id string) error {
	_, err := callWithTimeout(ctx, t.timeout, func(ctx context.Context) (*User, error) {
		return nil, t.next.DeleteIdentity(ctx, id)
	})
	return err
}

type callResult struct {
	user *User
	err  error
}

func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (*User, error)) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		user, err := fn(ctx)
		done <- callResult{user: user, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, res.err)
		}
		return res.user, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}
