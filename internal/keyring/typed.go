package keyring

import (
	"context"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// UTXOKeyring is a Manager bound to the UTXO family. Its SetSignerNetwork
// only accepts UTXO networks, so a cross-family switch cannot be expressed.
type UTXOKeyring struct {
	*Manager
}

// NewUTXOKeyring creates a UTXO keyring. opts.Family is ignored.
func NewUTXOKeyring(opts Options) (*UTXOKeyring, error) {
	opts.Family = chain.FamilyUTXO
	m, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &UTXOKeyring{Manager: m}, nil
}

// SetSignerNetwork switches to a UTXO network.
func (k *UTXOKeyring) SetSignerNetwork(ctx context.Context, n chain.UTXONetwork) (SwitchResult, error) {
	return k.Manager.SetSignerNetwork(ctx, n.Network())
}

// EVMKeyring is a Manager bound to the EVM family.
type EVMKeyring struct {
	*Manager
}

// NewEVMKeyring creates an EVM keyring. opts.Family is ignored.
func NewEVMKeyring(opts Options) (*EVMKeyring, error) {
	opts.Family = chain.FamilyEVM
	m, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &EVMKeyring{Manager: m}, nil
}

// SetSignerNetwork switches to an EVM network.
func (k *EVMKeyring) SetSignerNetwork(ctx context.Context, n chain.EVMNetwork) (SwitchResult, error) {
	return k.Manager.SetSignerNetwork(ctx, n.Network())
}
