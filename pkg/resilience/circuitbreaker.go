package resilience

import (
	"errors"
	"sync"
	"time"

	"characterchat/backend/pkg/logger"
)

// ErrCircuitOpen is returned by Execute while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed means calls pass through
	StateClosed CircuitBreakerState = "closed"
	// StateOpen means calls are rejected until the retry timeout elapses
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen means a limited number of trial calls are let through
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreaker fails fast once an upstream has failed FailureThreshold
// times in a row. It never retries on its own.
type CircuitBreaker struct {
	name             string
	failureThreshold uint
	successThreshold uint
	retryTimeout     time.Duration
	log              *logger.Logger
	now              func() time.Time

	mutex           sync.Mutex
	state           CircuitBreakerState
	failureCount    uint
	successCount    uint
	inFlightTrials  uint
	lastFailureTime time.Time
	nextAttemptTime time.Time

	totalRequests    uint64
	totalFailures    uint64
	totalSuccesses   uint64
	totalRejected    uint64
	openCircuitCount uint64
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	RetryTimeout     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		RetryTimeout:     30 * time.Second,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		name:             config.Name,
		state:            StateClosed,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		retryTimeout:     config.RetryTimeout,
		log:              log,
		now:              config.Now,
	}
}

// Execute runs fn through the breaker. A non-nil error from fn counts as a
// failure; ErrCircuitOpen is returned without calling fn while open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		cb.log.Warn("Circuit breaker rejected call", "name", cb.name)
		return ErrCircuitOpen
	}

	start := cb.now()
	err := fn()
	if err != nil {
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.name,
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttemptTime) {
			cb.totalRejected++
			return false
		}
		cb.toHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.inFlightTrials >= cb.successThreshold {
			cb.totalRejected++
			return false
		}
		cb.inFlightTrials++
	}
	cb.totalRequests++
	return true
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openCircuitCount++
	cb.inFlightTrials = 0
	cb.nextAttemptTime = cb.now().Add(cb.retryTimeout)

	cb.log.Info("Circuit breaker opened",
		"name", cb.name,
		"failures", cb.failureCount,
		"nextAttempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.inFlightTrials = 0

	cb.log.Info("Circuit breaker half-open", "name", cb.name)
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.inFlightTrials = 0

	cb.log.Info("Circuit breaker closed", "name", cb.name)
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state
}

// GetMetrics returns counters suitable for the health endpoint.
func (cb *CircuitBreaker) GetMetrics() map[string]any {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return map[string]any{
		"name":               cb.name,
		"state":              string(cb.state),
		"total_requests":     cb.totalRequests,
		"total_failures":     cb.totalFailures,
		"total_successes":    cb.totalSuccesses,
		"total_rejected":     cb.totalRejected,
		"open_circuit_count": cb.openCircuitCount,
		"last_failure_time":  cb.lastFailureTime,
	}
}
