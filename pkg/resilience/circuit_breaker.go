package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, the next request probes recovery
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a probe
	// request is allowed through
	RecoveryTimeout time.Duration
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreaker blocks calls to a failing resource until it has had
// time to recover. The breaker holds no timers: the open state decays
// into half-open lazily, the first time the breaker is consulted after
// the recovery timeout has passed.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex           sync.Mutex
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}

	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
		logger:           logging.GetLogger(),
	}
}

// IsOpen reports whether calls should currently be blocked. Evaluating
// it performs the open-to-half-open transition once the recovery
// timeout has elapsed, so the probe that follows starts with a clean
// failure count.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.currentStateLocked(time.Now()) == StateOpen
}

// RecordSuccess clears the failure streak. A success while half-open
// closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.setStateLocked(StateClosed)
	}
}

// RecordFailure extends the failure streak. Reaching the threshold
// opens the circuit; any failure while half-open reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.setStateLocked(StateOpen)
		return
	}

	if cb.state == StateClosed && cb.failureCount >= cb.failureThreshold {
		cb.setStateLocked(StateOpen)
	}
}

// State returns the current state of the circuit breaker, applying the
// lazy recovery transition first.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.currentStateLocked(time.Now())
}

// FailureCount returns the current consecutive failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.failureCount
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset force-closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.setStateLocked(StateClosed)
}

// Status returns a snapshot of the breaker for status endpoints.
func (cb *CircuitBreaker) Status() map[string]interface{} {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := cb.currentStateLocked(time.Now())

	status := map[string]interface{}{
		"name":              cb.name,
		"state":             state.String(),
		"failure_count":     cb.failureCount,
		"failure_threshold": cb.failureThreshold,
		"recovery_timeout":  cb.recoveryTimeout.String(),
	}
	if !cb.lastFailureTime.IsZero() {
		status["last_failure_time"] = cb.lastFailureTime
	}
	return status
}

// currentStateLocked applies the lazy open-to-half-open transition and
// returns the effective state. Caller must hold the lock.
func (cb *CircuitBreaker) currentStateLocked(now time.Time) CircuitState {
	if cb.state == StateOpen && now.Sub(cb.lastFailureTime) >= cb.recoveryTimeout {
		// The probe's failure streak starts fresh so a single failed
		// probe reopens the circuit without help from stale counts.
		cb.failureCount = 0
		cb.setStateLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Warn("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", cb.failureCount,
	)
}

// CircuitBreakerError is returned when a call is blocked by an open circuit
type CircuitBreakerError struct {
	Name  string
	State CircuitState
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State.String())
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
