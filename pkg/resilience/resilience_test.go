package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

func fail() error { return errBackend }
func ok() error   { return nil }

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("cache", BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Second,
		Now:              func() time.Time { return now },
	})

	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	now = now.Add(time.Second)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("cache", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		Now:              func() time.Time { return now },
	})
	cb.Execute(fail)
	now = now.Add(2 * time.Second)
	cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok), ErrCircuitOpen)
}

func TestBreakerIgnoresClassifiedErrors(t *testing.T) {
	miss := errors.New("miss")
	cb := NewCircuitBreaker("cache", BreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, miss) },
	})
	for range 3 {
		assert.ErrorIs(t, cb.Execute(func() error { return miss }), miss)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "load", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("corrupt")
	attempts := 0
	err := Retry(context.Background(), "load", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		attempts++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), "load", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, fail)
	assert.ErrorIs(t, err, errBackend)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "load", RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}, fail)
	assert.ErrorIs(t, err, context.Canceled)
}
