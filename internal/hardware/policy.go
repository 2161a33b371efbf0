package hardware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// dial races one transport creation against ConnectTimeout. A transport that
// arrives after the deadline is closed.
func (m *Manager) dial(ctx context.Context, c Connector) (Transport, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	type result struct {
		t   Transport
		err error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := c.Connect(attemptCtx)
		ch <- result{t: t, err: err}
	}()

	timedOut := func() (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s did not connect within %s", chain.ErrTimeout, c.Vendor(), m.opts.ConnectTimeout)
	}

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return timedOut()
		}
		if r.err == nil && r.t == nil {
			return nil, ErrNotConnected
		}
		return r.t, r.err
	case <-attemptCtx.Done():
		go func() {
			if r := <-ch; r.t != nil {
				_ = r.t.Close()
			}
		}()
		return timedOut()
	}
}

// connectLedger retries transport creation under the Ledger backoff policy.
// Only the caller's own cancellation stops it early.
func (m *Manager) connectLedger(ctx context.Context, c Connector) (Transport, error) {
	vendor := c.Vendor()

	// a stale transport from a device disconnect is replaced, never reused
	m.dropTransport(vendor)

	shouldRetry := func(err error) bool {
		return !errors.Is(err, context.Canceled) && ctx.Err() == nil
	}
	hooks := chain.RetryHooks{
		OnAttempt: func(attempt int) { m.noteAttempt(vendor, attempt) },
		OnRetry: func(attempt int, delay time.Duration, cause error) {
			m.noteRetry(vendor, attempt, delay, cause)
		},
	}

	t, err := chain.RetryWithPolicy(ctx, m.opts.LedgerPolicy, shouldRetry, hooks, func() (Transport, error) {
		return m.dial(ctx, c)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionExhausted, err)
	}
	return t, nil
}

// connectTrezor makes at most TrezorAttempts attempts. A user cancellation
// ends the sequence at once. An "already initialized" answer probes the
// pooled transport and reuses it when it still responds; otherwise the
// transport and the vendor library are torn down before the retry.
func (m *Manager) connectTrezor(ctx context.Context, c Connector) (Transport, error) {
	vendor := c.Vendor()
	attempts := m.opts.TrezorAttempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		m.noteAttempt(vendor, attempt)

		t, err := m.dial(ctx, c)
		if err == nil {
			return t, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isUserCancellation(err) {
			return nil, fmt.Errorf("%w: %w", ErrUserCancelled, err)
		}

		if isAlreadyInitialized(err) {
			if existing := m.existingTransport(vendor); existing != nil {
				probeCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
				probeErr := existing.Probe(probeCtx)
				cancel()
				if probeErr == nil {
					m.opts.Logger.Debug("%s already initialized, reusing live transport", vendor)
					return existing, nil
				}
				m.opts.Logger.Debug("%s probe failed: %v", vendor, probeErr)
			}
			m.dropTransport(vendor)
			if derr := c.Dispose(); derr != nil {
				m.opts.Logger.Debug("disposing %s before retry: %v", vendor, derr)
			}
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		delay := m.opts.TrezorRetryDelay
		m.noteRetry(vendor, attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrConnectionExhausted, lastErr)
}
