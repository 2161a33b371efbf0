package hardware

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// SignerConfig describes the account a hardware Signer signs for.
type SignerConfig struct {
	Vendor       Vendor
	Network      chain.Network
	AccountIndex uint32
	Address      string
	PublicKey    []byte
	// Path is the derivation path the device signs with.
	Path string
}

// Signer delegates signing to a device. Every signature first ensures the
// vendor's connection.
type Signer struct {
	manager *Manager
	cfg     SignerConfig
}

// NewSigner binds cfg to the manager's pool.
func NewSigner(m *Manager, cfg SignerConfig) *Signer {
	return &Signer{manager: m, cfg: cfg}
}

// Family returns the network family.
func (s *Signer) Family() chain.Family { return s.cfg.Network.Family() }

// Network returns the network the signer was built for.
func (s *Signer) Network() chain.Network { return s.cfg.Network }

// AccountIndex returns the account id.
func (s *Signer) AccountIndex() uint32 { return s.cfg.AccountIndex }

// Address returns the account address.
func (s *Signer) Address() string { return s.cfg.Address }

// PublicKey returns a copy of the account public key.
func (s *Signer) PublicKey() []byte { return append([]byte(nil), s.cfg.PublicKey...) }

// Vendor returns the device vendor.
func (s *Signer) Vendor() Vendor { return s.cfg.Vendor }

// SignDigest signs digest on the device, bounded by the connect timeout.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.manager.opts.ConnectTimeout)
	defer cancel()
	return s.SignDigestContext(ctx, digest)
}

// SignDigestContext signs digest on the device.
func (s *Signer) SignDigestContext(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{
			"field": "digest",
			"want":  "32 bytes",
		})
	}
	if err := s.manager.EnsureConnection(ctx, s.cfg.Vendor); err != nil {
		return nil, err
	}
	t, ok := s.manager.Transport(s.cfg.Vendor)
	if !ok {
		return nil, ErrNotConnected
	}
	ds, ok := t.(DigestSigner)
	if !ok {
		return nil, ErrSigningUnsupported
	}
	sig, err := ds.SignDigest(ctx, s.cfg.Path, digest)
	if err != nil {
		if isUserCancellation(err) {
			return nil, fmt.Errorf("%w: %w", ErrUserCancelled, err)
		}
		return nil, fmt.Errorf("signing on %s: %w", s.cfg.Vendor, err)
	}
	return sig, nil
}

// SignTx signs an EVM transaction on the device. Transports without
// transaction support return ErrSigningUnsupported.
func (s *Signer) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.Family() != chain.FamilyEVM {
		return nil, fmt.Errorf("%w: %s accounts sign digests", ErrSigningUnsupported, s.Family())
	}
	if err := s.manager.EnsureConnection(ctx, s.cfg.Vendor); err != nil {
		return nil, err
	}
	t, ok := s.manager.Transport(s.cfg.Vendor)
	if !ok {
		return nil, ErrNotConnected
	}
	ts, ok := t.(TxSigner)
	if !ok {
		return nil, ErrSigningUnsupported
	}
	signed, err := ts.SignTx(ctx, s.cfg.Path, tx, chainID)
	if err != nil {
		if isUserCancellation(err) {
			return nil, fmt.Errorf("%w: %w", ErrUserCancelled, err)
		}
		return nil, fmt.Errorf("signing on %s: %w", s.cfg.Vendor, err)
	}
	return signed, nil
}

var _ chain.Signer = (*Signer)(nil)
