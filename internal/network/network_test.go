package network_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/network"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

var errUpstream = errors.New("upstream 503")

// fakeResolver fails with the queued errors, then succeeds.
type fakeResolver struct {
	calls atomic.Int32
	mu    sync.Mutex
	errs  []error
	all   error
}

func (f *fakeResolver) ResolveNetwork(_ context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	f.calls.Add(1)
	if f.all != nil {
		return nil, f.all
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &chain.ResolvedNetwork{Network: n, ChainConfig: chain.ChainConfig{ChainID: n.ChainID}}, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (o *recordingObserver) ObserveResolve(_ chain.Family, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func fastOptions() network.GuardedOptions {
	return network.GuardedOptions{
		Policy: chain.BackoffPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			MaxDelay:    5 * time.Millisecond,
		},
		Limiter: chain.NewRateLimiter(1000, 1000),
	}
}

func evmNetwork() chain.Network {
	return chain.Network{ChainID: 1, URL: "https://rpc.example.org", Label: "Ethereum", Slip44: chain.CoinTypeEVM}
}

func TestRouter_Dispatch(t *testing.T) {
	t.Parallel()

	utxo := &fakeResolver{}
	router := network.NewRouter().Register(chain.FamilyUTXO, utxo)

	_, err := router.ResolveNetwork(context.Background(), chain.DefaultNetwork(chain.FamilyUTXO))
	require.NoError(t, err)
	assert.Equal(t, int32(1), utxo.calls.Load())

	_, err = router.ResolveNetwork(context.Background(), evmNetwork())
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
}

func TestResolverFunc(t *testing.T) {
	t.Parallel()
	called := false
	var r network.Resolver = network.ResolverFunc(func(_ context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
		called = true
		return &chain.ResolvedNetwork{Network: n}, nil
	})
	res, err := r.ResolveNetwork(context.Background(), evmNetwork())
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, uint64(1), res.Network.ChainID)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	res, err := network.Static{}.ResolveNetwork(context.Background(), chain.DefaultNetwork(chain.FamilyUTXO))
	require.NoError(t, err)
	assert.Equal(t, uint64(57), res.ChainConfig.ChainID)

	_, err = network.Static{}.ResolveNetwork(context.Background(), chain.Network{Slip44: chain.CoinTypeEVM, URL: "https://x"})
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	require.ErrorIs(t, err, sigilerr.ErrInvalidInput)
}

func TestGuarded_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	next := &fakeResolver{errs: []error{chain.WrapRetryable(errUpstream), chain.ErrTimeout}}
	obs := &recordingObserver{}
	opts := fastOptions()
	opts.Observer = obs
	g := network.NewGuarded(next, opts)

	res, err := g.ResolveNetwork(context.Background(), evmNetwork())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.ChainConfig.ChainID)
	assert.Equal(t, int32(3), next.calls.Load())
	require.Len(t, obs.errs, 1)
	assert.NoError(t, obs.errs[0])
}

func TestGuarded_MismatchIsNotRetried(t *testing.T) {
	t.Parallel()

	mismatch := sigilerr.Wrap(sigilerr.ErrNetworkValidation, "chain id mismatch")
	next := &fakeResolver{all: mismatch}
	g := network.NewGuarded(next, fastOptions())

	_, err := g.ResolveNetwork(context.Background(), evmNetwork())
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestGuarded_ExhaustionIsValidationError(t *testing.T) {
	t.Parallel()

	next := &fakeResolver{all: chain.WrapRetryable(errUpstream)}
	obs := &recordingObserver{}
	opts := fastOptions()
	opts.Observer = obs
	g := network.NewGuarded(next, opts)

	_, err := g.ResolveNetwork(context.Background(), evmNetwork())
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, int32(3), next.calls.Load())
	require.Len(t, obs.errs, 1)
	assert.Error(t, obs.errs[0])
}

func TestGuarded_BreakerOpens(t *testing.T) {
	t.Parallel()

	next := &fakeResolver{all: chain.WrapRetryable(errUpstream)}
	opts := fastOptions()
	opts.Policy.MaxAttempts = 1
	opts.Breaker = network.BreakerSettings{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute}
	g := network.NewGuarded(next, opts)
	n := evmNetwork()

	for i := 0; i < 2; i++ {
		_, err := g.ResolveNetwork(context.Background(), n)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.BreakerState(n))

	_, err := g.ResolveNetwork(context.Background(), n)
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), next.calls.Load())

	// Another host has its own breaker
	other := n
	other.URL = "https://other.example.org"
	assert.Equal(t, gobreaker.StateClosed, g.BreakerState(other))
}

func TestGuarded_MismatchDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	next := &fakeResolver{all: sigilerr.ErrNetworkValidation}
	opts := fastOptions()
	opts.Breaker = network.BreakerSettings{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute}
	g := network.NewGuarded(next, opts)
	n := evmNetwork()

	for i := 0; i < 5; i++ {
		_, err := g.ResolveNetwork(context.Background(), n)
		require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	}
	assert.Equal(t, gobreaker.StateClosed, g.BreakerState(n))
	assert.Equal(t, int32(5), next.calls.Load())

	// mismatches count as answered calls in the failure ratio
	opts.Policy.MaxAttempts = 1
	g2 := network.NewGuarded(&fakeResolver{errs: []error{
		sigilerr.ErrNetworkValidation, sigilerr.ErrNetworkValidation, sigilerr.ErrNetworkValidation,
		chain.WrapRetryable(errUpstream), chain.WrapRetryable(errUpstream),
	}}, opts)
	for i := 0; i < 5; i++ {
		_, err := g2.ResolveNetwork(context.Background(), n)
		require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	}
	assert.Equal(t, gobreaker.StateClosed, g2.BreakerState(n), "2 outages in 5 calls stay under the ratio")
}

func TestGuarded_ContextCanceled(t *testing.T) {
	t.Parallel()

	next := &fakeResolver{all: chain.WrapRetryable(errUpstream)}
	opts := fastOptions()
	opts.Policy.BaseDelay = time.Hour
	opts.Policy.MaxDelay = time.Hour
	g := network.NewGuarded(next, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.ResolveNetwork(ctx, evmNetwork())
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestDefaultBreakerSettings(t *testing.T) {
	t.Parallel()
	s := network.DefaultBreakerSettings()
	assert.Equal(t, uint32(5), s.MinRequests)
	assert.InDelta(t, 0.6, s.FailureRatio, 1e-9)
	assert.Equal(t, 30*time.Second, s.OpenTimeout)
}
