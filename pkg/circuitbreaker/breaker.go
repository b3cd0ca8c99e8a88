package circuitbreaker

import (
	"log"
	"sync"
	"time"
)

// CircuitBreaker implements the circuit breaker pattern. One breaker guards
// the wallet RPC endpoint: repeated transport failures trip it open so the
// polling lanes back off instead of hammering a dead RPC.
type CircuitBreaker struct {
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	mu            sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(enabled bool, threshold int, window time.Duration, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
	}
}

// IsEnabled returns whether the breaker is active at all.
func (cb *CircuitBreaker) IsEnabled() bool {
	return cb.enabled
}

// RecordFailure records a failure and trips the circuit if threshold is exceeded
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	// If the circuit is already tripped, check if it's time to try again
	if cb.tripped {
		if time.Since(cb.tripTime) > cb.resetTimeout {
			log.Printf("Circuit breaker: Attempting to reset after timeout")
			cb.tripped = false
			cb.failureCount = 0
		} else {
			return true // Still tripped
		}
	}

	// Reset failure count if outside window
	if time.Since(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	// Record this failure
	cb.failureCount++
	cb.lastFailure = now

	// Check if we need to trip the circuit
	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		log.Printf("Circuit breaker tripped: %d failures in window", cb.failureCount)
		return true
	}

	return false
}

// RecordSuccess resets the failure count after a healthy call.
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.tripped = false
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && time.Since(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
	}

	return cb.tripped
}

// GetState returns the current state of the breaker for diagnostics.
func (cb *CircuitBreaker) GetState() (failureCount int, lastFailure time.Time, window time.Duration, threshold int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.lastFailure, cb.failureWindow, cb.failThreshold
}
