package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// BreakerSettings configures the per-host circuit breaker.
type BreakerSettings struct {
	// MinRequests is the number of requests observed before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns breaker settings suited to interactive
// network switches.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  5,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
	}
}

// Observer receives resolution outcomes. It is satisfied by the metrics package.
type Observer interface {
	ObserveResolve(family chain.Family, err error)
}

// GuardedOptions configures a Guarded resolver. Zero values use defaults.
type GuardedOptions struct {
	Policy   chain.BackoffPolicy
	Limiter  *chain.RateLimiter
	Breaker  BreakerSettings
	Logger   config.LogWriter
	Observer Observer
}

// Guarded wraps a Resolver with rate limiting, retries, and a circuit
// breaker per RPC host. Every failure surfaces as ErrNetworkValidation.
type Guarded struct {
	next     Resolver
	policy   chain.BackoffPolicy
	limiter  *chain.RateLimiter
	settings BreakerSettings
	logger   config.LogWriter
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewGuarded wraps next.
func NewGuarded(next Resolver, opts GuardedOptions) *Guarded {
	g := &Guarded{
		next:     next,
		policy:   opts.Policy,
		limiter:  opts.Limiter,
		settings: opts.Breaker,
		logger:   opts.Logger,
		observer: opts.Observer,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	if g.policy.MaxAttempts == 0 {
		g.policy = chain.DefaultBackoffPolicy()
	}
	if g.limiter == nil {
		g.limiter = chain.DefaultRateLimiter()
	}
	if g.settings.MinRequests == 0 {
		g.settings = DefaultBreakerSettings()
	}
	if g.logger == nil {
		g.logger = config.NullLogger()
	}
	return g
}

// ResolveNetwork resolves n through the guards.
func (g *Guarded) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	cb := g.breaker(chain.HostKey(n.URL))

	hooks := chain.RetryHooks{
		OnRetry: func(attempt int, delay time.Duration, cause error) {
			g.logger.Debug("network %s: attempt %d failed, retrying in %s: %v", n, attempt, delay, cause)
		},
	}

	resolved, err := chain.RetryWithPolicy(ctx, g.policy, chain.IsRetryable, hooks, func() (*chain.ResolvedNetwork, error) {
		if err := g.limiter.WaitNetwork(ctx, n); err != nil {
			return nil, err
		}
		out, err := cb.Execute(func() (any, error) {
			res, err := g.next.ResolveNetwork(ctx, n)
			if errors.Is(err, sigilerr.ErrNetworkValidation) {
				// the host answered; a record mismatch is not an outage
				return mismatch{err}, nil
			}
			return res, err
		})
		if err != nil {
			return nil, err
		}
		if m, ok := out.(mismatch); ok {
			return nil, m.err
		}
		res, _ := out.(*chain.ResolvedNetwork)
		return res, nil
	})

	if g.observer != nil {
		g.observer.ObserveResolve(n.Family(), err)
	}
	if err != nil {
		g.logger.Error("network %s failed validation: %v", n, err)
		return nil, asValidationError(err)
	}
	return resolved, nil
}

// BreakerState returns the breaker state for a network's host.
func (g *Guarded) BreakerState(n chain.Network) gobreaker.State {
	return g.breaker(chain.HostKey(n.URL)).State()
}

func (g *Guarded) breaker(host string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[host]; ok {
		return cb
	}

	settings := g.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				g.logger.Error("network host %s seems down, stop allowing requests", name)
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				g.logger.Debug("network host %s seems ok, restart allowing requests", name)
			}
		},
	})
	g.breakers[host] = cb
	return cb
}

// mismatch carries a validation failure through the breaker as a result.
type mismatch struct{ err error }

func asValidationError(err error) error {
	if errors.Is(err, sigilerr.ErrNetworkValidation) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: endpoint unavailable: %w", sigilerr.ErrNetworkValidation, err)
	}
	return fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
}
