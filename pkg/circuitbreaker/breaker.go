package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests caps concurrent probes while half-open.
	MaxRequests uint32
	// Interval resets the closed-state failure count; zero means never.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold uint32
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold uint32
	Logger           *zap.Logger
}

// CircuitBreaker shields a flaky downstream. Closed passes everything
// through, open rejects immediately, half-open lets a bounded number of
// probes decide which way to go.
type CircuitBreaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	generation  uint64
	requests    uint32
	consecSucc  uint32
	consecFail  uint32
	stateExpiry time.Time
}

func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateClosed,
	}
	cb.resetGeneration(time.Now())
	return cb
}

// Execute runs fn through the breaker. A panic in fn counts as a failure
// and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	generation, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(generation, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(generation, err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	state, _ := cb.refresh(time.Now())
	return state
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.refresh(time.Now())

	if state == StateOpen {
		return generation, ErrCircuitOpen
	}
	if state == StateHalfOpen && cb.requests >= cb.cfg.MaxRequests {
		return generation, ErrTooManyRequests
	}

	cb.requests++
	return generation, nil
}

func (cb *CircuitBreaker) settle(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.refresh(now)
	if generation != before {
		// Outcome belongs to a lapsed generation. Ignore it.
		return
	}

	if success {
		cb.consecSucc++
		cb.consecFail = 0
		if state == StateHalfOpen && cb.consecSucc >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.consecFail++
	cb.consecSucc = 0
	if state == StateHalfOpen || (state == StateClosed && cb.consecFail >= cb.cfg.FailureThreshold) {
		cb.transition(StateOpen, now)
	}
}

func (cb *CircuitBreaker) refresh(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.stateExpiry.IsZero() && cb.stateExpiry.Before(now) {
			cb.resetGeneration(now)
		}
	case StateOpen:
		if cb.stateExpiry.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) transition(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.resetGeneration(now)

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)
}

func (cb *CircuitBreaker) resetGeneration(now time.Time) {
	cb.generation++
	cb.requests = 0
	cb.consecSucc = 0
	cb.consecFail = 0

	switch cb.state {
	case StateClosed:
		if cb.cfg.Interval > 0 {
			cb.stateExpiry = now.Add(cb.cfg.Interval)
		} else {
			cb.stateExpiry = time.Time{}
		}
	case StateOpen:
		cb.stateExpiry = now.Add(cb.cfg.Timeout)
	default:
		cb.stateExpiry = time.Time{}
	}
}
