package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", quietLogger())
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// After the reset timeout the breaker probes again
	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, ok))
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "CLOSED", cb.GetStats()["state"])
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", quietLogger())
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func() error { return boom })
	}

	now = now.Add(11 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", quietLogger())
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return boom })
	}
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, func() error { return boom })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}
