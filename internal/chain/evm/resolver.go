package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// RPCResolver validates EVM networks by asking the endpoint for its chain id.
type RPCResolver struct{}

// NewRPCResolver creates a resolver.
func NewRPCResolver() *RPCResolver {
	return &RPCResolver{}
}

// ResolveNetwork dials the network's JSON-RPC endpoint and checks that
// eth_chainId matches the record.
func (r *RPCResolver) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	if n.Family() != chain.FamilyEVM {
		return nil, fmt.Errorf("%w: %s is not an EVM network", sigilerr.ErrNetworkValidation, n)
	}

	client, err := ethclient.DialContext(ctx, n.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", sigilerr.ErrNetworkValidation, n.URL, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("querying chain id: %w", err))
	}
	if !chainID.IsUint64() || chainID.Uint64() != n.ChainID {
		return nil, fmt.Errorf("%w: endpoint reports chain id %s, network expects %d",
			sigilerr.ErrNetworkValidation, chainID, n.ChainID)
	}

	height, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, chain.WrapRetryable(fmt.Errorf("querying block number: %w", err))
	}

	return &chain.ResolvedNetwork{
		Network: n,
		ChainConfig: chain.ChainConfig{
			ChainID:     n.ChainID,
			Chain:       n.Label,
			Testnet:     n.IsTestnet,
			BlockHeight: height,
		},
	}, nil
}
