package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActingUserID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetActingUserID(ctx))

	ctx = WithActingUserID(ctx, "u-1")
	assert.Equal(t, "u-1", GetActingUserID(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", GetRequestID(ctx))

	ctx = context.WithValue(context.Background(), RequestIDKey, 42)
	assert.Empty(t, GetRequestID(ctx))
}
