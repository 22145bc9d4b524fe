// Package resilience provides retry and circuit breaking for calls to the
// database and the geocoder.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while the circuit is
// open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when a breaker opens and recovers.
type CircuitBreakerConfig struct {
	// Name labels log lines.
	Name string `mapstructure:"-"`
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// ResetTimeout is how long the circuit stays open. Default 30s.
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	// HalfOpenMaxCalls bounds concurrent calls while half-open; that many
	// successful calls close it again. Default 1.
	HalfOpenMaxCalls int `mapstructure:"half_open_max_calls"`
	// ShouldTrip decides which errors count as failures. Default:
	// TripUnlessCancelled.
	ShouldTrip func(err error) bool `mapstructure:"-"`
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker guards one dependency.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	openedAt    time.Time
	lastFailure error

	// inFlight is the number of running half-open calls; generation
	// numbers each half-open period so stale calls are not counted.
	inFlight   int
	generation int

	now func() time.Time
}

// NewCircuitBreaker fills unset fields of cfg with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	d := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = TripUnlessCancelled
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute calls fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for functions that produce a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	gen, err := cb.allow()
	if err != nil {
		var zero T
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err, gen)
	return val, err
}

// TripUnlessCancelled counts every error as a failure except the caller's
// own cancellation or deadline.
func TripUnlessCancelled(err error) bool {
	return err != nil && !IsCancellation(err)
}

// State returns the current state, reporting half-open once the reset
// timeout has elapsed even if no trial call has run yet.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// BreakerStats is a point-in-time view for status endpoints.
type BreakerStats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// Stats snapshots the breaker.
func (cb *CircuitBreaker) Stats() BreakerStats {
	state := cb.State()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := BreakerStats{
		Name:                cb.cfg.Name,
		State:               state.String(),
		ConsecutiveFailures: cb.failures,
	}
	if cb.lastFailure != nil {
		s.LastError = cb.lastFailure.Error()
	}
	return s
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
}

// allow admits a call. While half-open at most HalfOpenMaxCalls calls run at
// once; the returned gen is the half-open generation they belong to, or
// 0 for an ordinary call.
func (cb *CircuitBreaker) allow() (gen int, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		return 0, nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return 0, ErrCircuitOpen
		}
		cb.transition(CircuitHalfOpen)
	}
	if cb.inFlight >= cb.cfg.HalfOpenMaxCalls {
		return 0, ErrCircuitOpen
	}
	cb.inFlight++
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(err error, gen int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	current := gen != 0 && cb.state == CircuitHalfOpen && gen == cb.generation
	if current {
		cb.inFlight--
	}

	if err != nil && !cb.cfg.ShouldTrip(err) && IsCancellation(err) {
		// Abandoned calls count as neither failure nor success.
		return
	}

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if current {
			cb.successes++
			if cb.successes >= cb.cfg.HalfOpenMaxCalls {
				cb.successes = 0
				cb.transition(CircuitClosed)
			}
		}
		return
	}

	cb.failures++
	cb.lastFailure = err
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.openedAt = cb.now()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.successes = 0
		cb.openedAt = cb.now()
		cb.transition(CircuitOpen)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	zap.L().Info("circuit breaker state change",
		zap.String("breaker", cb.cfg.Name),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
		zap.Int("consecutive_failures", cb.failures),
	)
	cb.state = to
	cb.inFlight = 0
	if to == CircuitHalfOpen {
		cb.generation++
	}
}
