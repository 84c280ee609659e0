package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is refusing calls.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a flaky remote dependency. It counts
// outcomes over a rolling window; once enough calls have failed it opens
// and fails fast for a cooldown period, then lets a limited number of
// probes through before closing again.
type CircuitBreaker struct {
	name string

	// minRequests is the minimum sample size before the failure ratio
	// can trip the breaker, and the probe budget while half open.
	minRequests  uint32
	window       time.Duration
	cooldown     time.Duration
	failureRatio float64

	mutex      sync.Mutex
	state      State
	counts     Counts
	expiry     time.Time
	generation uint64
}

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// NewCircuitBreaker returns a breaker tuned for a remote HTTP endpoint:
// a spreadsheet script that starts timing out should fail fast within a
// handful of calls instead of stalling every dashboard mutation.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		minRequests:  10,
		window:       60 * time.Second,
		cooldown:     30 * time.Second,
		failureRatio: 0.6,
		state:        StateClosed,
	}
}

// Execute runs req under the breaker. When the breaker is open the call
// is rejected with ErrBreakerOpen without touching the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() (any, error)) (any, error) {
	generation, err := cb.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.afterRequest(generation, false)
			panic(e)
		}
	}()

	result, err := req()
	cb.afterRequest(generation, err == nil)
	return result, err
}

// State reports the current breaker state, advancing expired windows.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	state, _ := cb.currentState(time.Now())
	return state
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	if state == StateOpen {
		return generation, ErrBreakerOpen
	}
	if state == StateHalfOpen && cb.counts.Requests >= cb.minRequests {
		return generation, ErrBreakerOpen
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	_, generation := cb.currentState(now)
	if generation != before {
		// The window rolled over mid-flight; this outcome belongs to a
		// generation that no longer exists.
		return
	}

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure(now)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.toNewGeneration(time.Now())
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	if cb.state == StateHalfOpen || cb.readyToTrip() {
		cb.state = StateOpen
		cb.expiry = now.Add(cb.cooldown)
		cb.toNewGeneration(now)
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.Requests >= cb.minRequests &&
		float64(cb.counts.TotalFailures)/float64(cb.counts.Requests) >= cb.failureRatio
}

func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.state = StateHalfOpen
			cb.toNewGeneration(now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		cb.expiry = now.Add(cb.window)
	default:
		// Open keeps the cooldown expiry set by onFailure; half open has
		// no window of its own.
	}
}
