// Package network validates networks before a signer is committed to them.
// Resolvers are composed: a Router picks the family implementation and a
// Guarded wrapper adds rate limiting, retries, and a per-host circuit breaker.
package network

import (
	"context"
	"fmt"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Resolver checks that a network's endpoint is reachable and consistent
// with its record.
type Resolver interface {
	ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error)

// ResolveNetwork calls f.
func (f ResolverFunc) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	return f(ctx, n)
}

// Router dispatches to a Resolver per family.
type Router struct {
	resolvers map[chain.Family]Resolver
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{resolvers: make(map[chain.Family]Resolver)}
}

// Register sets the resolver for a family.
func (r *Router) Register(f chain.Family, res Resolver) *Router {
	r.resolvers[f] = res
	return r
}

// ResolveNetwork resolves n with the resolver of its family.
func (r *Router) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	res, ok := r.resolvers[n.Family()]
	if !ok {
		return nil, fmt.Errorf("%w: no resolver for %s networks", sigilerr.ErrNetworkValidation, n.Family())
	}
	return res.ResolveNetwork(ctx, n)
}

// Static resolves every network to itself without I/O. It is used for
// offline operation and tests.
type Static struct{}

// ResolveNetwork returns n unchanged after validating its fields.
func (Static) ResolveNetwork(_ context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
	}
	return &chain.ResolvedNetwork{
		Network:     n,
		ChainConfig: chain.ChainConfig{ChainID: n.ChainID, Testnet: n.IsTestnet},
	}, nil
}
