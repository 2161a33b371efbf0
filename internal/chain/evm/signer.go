package evm

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// ErrInvalidDigest indicates a digest that is not 32 bytes.
var ErrInvalidDigest = errors.New("digest must be 32 bytes")

// Compile-time interface check
var _ chain.Signer = (*Signer)(nil)

// Signer signs for one EVM account on one network.
type Signer struct {
	network chain.Network
	index   uint32
	priv    *ecdsa.PrivateKey
	address common.Address
}

// NewSigner builds a signer for an HD account derived from seed.
func NewSigner(seed []byte, n chain.Network, index uint32) (*Signer, error) {
	raw, err := DerivePrivateKey(seed, index)
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	return NewRawSigner(raw, n, index)
}

// NewRawSigner builds a signer from a raw private key.
func NewRawSigner(raw []byte, n chain.Network, index uint32) (*Signer, error) {
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return &Signer{
		network: n,
		index:   index,
		priv:    priv,
		address: crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// Family returns chain.FamilyEVM.
func (s *Signer) Family() chain.Family { return chain.FamilyEVM }

// Network returns the network the signer was built for.
func (s *Signer) Network() chain.Network { return s.network }

// AccountIndex returns the account id.
func (s *Signer) AccountIndex() uint32 { return s.index }

// Address returns the checksummed account address.
func (s *Signer) Address() string { return s.address.Hex() }

// PublicKey returns the 65-byte uncompressed public key.
func (s *Signer) PublicKey() []byte { return crypto.FromECDSAPub(&s.priv.PublicKey) }

// SignDigest returns a 65-byte [R || S || V] signature with V in {0, 1}.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, ErrInvalidDigest
	}
	return crypto.Sign(digest, s.priv)
}

// SignPersonalMessage signs msg with the EIP-191 personal_sign prefix and
// returns a signature with V in {27, 28}.
func (s *Signer) SignPersonalMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.priv)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignTx signs a transaction for the signer's chain id.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(s.network.ChainID))
	signed, err := types.SignTx(tx, signer, s.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// Wipe zeroes the private scalar.
func (s *Signer) Wipe() {
	if s.priv != nil && s.priv.D != nil {
		s.priv.D.SetInt64(0)
	}
}
