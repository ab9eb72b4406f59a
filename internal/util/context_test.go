package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, RouteFromContext(ctx))
	assert.True(t, StartTimeFromContext(ctx).IsZero())
	assert.Zero(t, ElapsedTime(ctx))

	now := time.Now().Add(-time.Second)
	ctx = ContextWithRequestID(ctx, "550e8400-e29b-41d4-a716-446655440000")
	ctx = ContextWithTraceID(ctx, "trace-1")
	ctx = ContextWithRoute(ctx, "/google")
	ctx = ContextWithStartTime(ctx, now)

	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", RequestIDFromContext(ctx))
	assert.Equal(t, "trace-1", TraceIDFromContext(ctx))
	assert.Equal(t, "/google", RouteFromContext(ctx))
	assert.Equal(t, now, StartTimeFromContext(ctx))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
}
