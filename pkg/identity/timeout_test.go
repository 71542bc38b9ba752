package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hangingProvider never answers and ignores its context
type hangingProvider struct {
	*MemoryProvider
	release chan struct{}
}

func (h *hangingProvider) CreateIdentity(ctx context.Context, req CreateRequest) (*User, error) {
	<-h.release
	return nil, nil
}

func TestWithTimeout_NonResponseIsFailure(t *testing.T) {
	h := &hangingProvider{MemoryProvider: NewMemoryProvider(), release: make(chan struct{})}
	defer close(h.release)

	p := WithTimeout(h, 50*time.Millisecond)

	start := time.Now()
	_, err := p.CreateIdentity(context.Background(), CreateRequest{Email: "slow@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	mem := NewMemoryProvider()
	p := WithTimeout(mem, time.Second)

	u, err := p.CreateIdentity(context.Background(), CreateRequest{Email: "fast@example.com"})
	require.NoError(t, err)

	found, err := p.LookupByEmail(context.Background(), "FAST@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	got, err := p.GetIdentity(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fast@example.com", got.Email)

	require.NoError(t, p.DeleteIdentity(context.Background(), u.ID))
	_, err = p.LookupByEmail(context.Background(), "fast@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTimeout_CallerCancellation(t *testing.T) {
	h := &hangingProvider{MemoryProvider: NewMemoryProvider(), release: make(chan struct{})}
	defer close(h.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(h, time.Minute).CreateIdentity(ctx, CreateRequest{Email: "x@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
