package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the upstream has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name                string
	ConsecutiveFailures uint32        // trip after this many failures in a row
	MinRequests         uint32        // minimum requests before the ratio rule applies
	FailureThreshold    float64       // failure ratio (0.0-1.0) that trips the breaker
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open duration before half-open
	HalfOpenMaxCalls    uint32
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		ConsecutiveFailures: 5,
		MinRequests:         20,
		FailureThreshold:    0.5,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		HalfOpenMaxCalls:    3,
	}
}

// CircuitBreaker guards one upstream endpoint
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	st := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxCalls,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= config.ConsecutiveFailures {
			return true
		}
		if counts.Requests < config.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
	}
	// A missing account or cancelled cycle says nothing about upstream health.
	st.IsSuccessful = func(err error) bool {
		return err == nil || apperrors.IsNotFound(err) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": name,
			"from":           from.String(),
			"to":             to.String(),
		}).Warn("Circuit breaker state changed")
	}

	return &CircuitBreaker{name: config.Name, cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn if the circuit allows it
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewTransientError(cb.name, fmt.Errorf("%w: %v", ErrCircuitOpen, err))
	}
	return err
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	switch cb.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// CircuitBreakerManager manages one breaker per upstream endpoint
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string, config *Config) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	if config == nil {
		config = DefaultConfig(name)
	}
	config.Name = name

	cb := NewCircuitBreaker(config)
	cbm.breakers[name] = cb

	return cb
}

// States returns the state of every breaker, keyed by name
func (cbm *CircuitBreakerManager) States() map[string]State {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	result := make(map[string]State, len(cbm.breakers))
	for name, cb := range cbm.breakers {
		result[name] = cb.GetState()
	}
	return result
}
