package network

import (
	"net/http"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/chain/evm"
	"github.com/mrz1836/sigil-keyring/internal/chain/utxo"
	"github.com/mrz1836/sigil-keyring/internal/config"
)

// FromConfig builds the resolver chain described by cfg: Static when offline,
// otherwise the Blockbook and JSON-RPC resolvers behind a Guarded wrapper.
func FromConfig(cfg config.ResolverConfig, logger config.LogWriter, obs Observer) Resolver {
	if cfg.Offline {
		return Static{}
	}

	client := &http.Client{Timeout: cfg.Timeout}
	router := NewRouter().
		Register(chain.FamilyUTXO, utxo.NewBlockbookResolver(client)).
		Register(chain.FamilyEVM, evm.NewRPCResolver())

	opts := GuardedOptions{
		Policy:   cfg.Backoff,
		Logger:   logger,
		Observer: obs,
		Breaker: BreakerSettings{
			MinRequests:  cfg.BreakerMinRequests,
			FailureRatio: cfg.BreakerFailureRatio,
			OpenTimeout:  cfg.BreakerOpenTimeout,
		},
	}
	if cfg.RatePerSecond > 0 && cfg.Burst > 0 {
		opts.Limiter = chain.NewRateLimiter(cfg.RatePerSecond, cfg.Burst)
	}
	return NewGuarded(router, opts)
}
