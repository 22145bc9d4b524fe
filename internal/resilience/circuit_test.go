package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func pass(context.Context) error { return nil }

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "store",
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
		assert.Equal(t, CircuitClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	require.NoError(t, cb.Execute(context.Background(), pass))
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), pass))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(context.Background(), pass), ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return NewTransientError(errBoom, 503)
	})
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "store"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return eris.Wrap(context.DeadlineExceeded, "query facilities")
		})
	}
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Execute(context.Background(), pass))
}

func TestCircuitBreaker_CancelledHalfOpenCallIsNeutral(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	*now = now.Add(time.Minute)

	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), pass))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentCalls(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	_ = cb.Execute(context.Background(), fail)
	*now = now.Add(time.Minute)

	var concurrent error
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		// A second caller arrives while the trial call is still running.
		concurrent = cb.Execute(ctx, pass)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, concurrent, ErrCircuitOpen)
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Execute(context.Background(), pass))
}

func TestCircuitBreaker_HalfOpenMaxCallsConfigured(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 2,
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), fail)
	now = now.Add(time.Minute)

	var second, third error
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		second = cb.Execute(ctx, func(ctx context.Context) error {
			third = cb.Execute(ctx, pass)
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, second)
	assert.ErrorIs(t, third, ErrCircuitOpen)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_StaleCallDoesNotCloseHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		// Started while closed; the circuit opens and goes half-open meanwhile.
		_ = cb.Execute(ctx, fail)
		*now = now.Add(time.Minute)
		assert.Equal(t, CircuitHalfOpen, cb.State())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestExecuteVal(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)

	v, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, errBoom })
	v, err = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 7, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, v)
}

func TestCircuitBreaker_StatsAndReset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	_ = cb.Execute(context.Background(), fail)

	s := cb.Stats()
	assert.Equal(t, "store", s.Name)
	assert.Equal(t, "open", s.State)
	assert.Equal(t, 1, s.ConsecutiveFailures)
	assert.Equal(t, "boom", s.LastError)

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().ConsecutiveFailures)
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), pass)
			} else {
				_ = cb.Execute(context.Background(), fail)
			}
			_ = cb.Stats()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
