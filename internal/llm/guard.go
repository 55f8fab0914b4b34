package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// GuardConfig tunes the call guard shared by all provider clients.
type GuardConfig struct {
	// MaxFailures is the number of consecutive failures that trip the
	// circuit. Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before allowing test
	// requests. Default: 30 seconds.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes in
	// half-open state required to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32

	// RequestsPerSecond caps the sustained call rate to the provider.
	// Zero means unlimited.
	RequestsPerSecond float64

	// Burst is the rate-limiter burst size. Default: 1 when rate limiting
	// is enabled.
	Burst int
}

// callGuard wraps every outbound provider call with a rate limiter and a
// circuit breaker. The limiter waits (respecting context cancellation)
// before the call; the breaker fails fast once the provider looks down.
type callGuard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// newCallGuard creates a guard named after the provider it protects.
func newCallGuard(name string, cfg GuardConfig) *callGuard {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	g := &callGuard{}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	})

	return g
}

// do runs fn through the rate limiter and circuit breaker.
// If the circuit is open it returns ErrCircuitOpen immediately; a limiter
// wait that outlives the context returns the context error.
func (g *callGuard) do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrProvider, err)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}
