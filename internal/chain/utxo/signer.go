package utxo

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// ErrInvalidDigest indicates a digest that is not 32 bytes.
var ErrInvalidDigest = errors.New("digest must be 32 bytes")

// Compile-time interface check
var _ chain.Signer = (*Signer)(nil)

// Signer signs for the first receive key of a BIP84 account.
type Signer struct {
	network chain.Network
	index   uint32
	priv    *btcec.PrivateKey
	pub     *btcec.PublicKey
	address string
}

// NewSigner builds a signer from an account-level extended private key.
func NewSigner(account *hdkeychain.ExtendedKey, n chain.Network, index uint32) (*Signer, error) {
	first, err := ReceiveKey(account)
	if err != nil {
		return nil, err
	}
	priv, err := first.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return newSigner(priv, n, index)
}

// NewRawSigner builds a signer from a raw 32-byte private key.
func NewRawSigner(raw []byte, n chain.Network, index uint32) (*Signer, error) {
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, ErrInvalidPrivateKey
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return newSigner(priv, n, index)
}

func newSigner(priv *btcec.PrivateKey, n chain.Network, index uint32) (*Signer, error) {
	pub := priv.PubKey()
	address, err := P2WPKHAddress(pub, n)
	if err != nil {
		return nil, err
	}
	return &Signer{network: n, index: index, priv: priv, pub: pub, address: address}, nil
}

// Family returns chain.FamilyUTXO.
func (s *Signer) Family() chain.Family { return chain.FamilyUTXO }

// Network returns the network the signer was built for.
func (s *Signer) Network() chain.Network { return s.network }

// AccountIndex returns the account id.
func (s *Signer) AccountIndex() uint32 { return s.index }

// Address returns the P2WPKH receive address.
func (s *Signer) Address() string { return s.address }

// PublicKey returns the 33-byte compressed public key.
func (s *Signer) PublicKey() []byte { return s.pub.SerializeCompressed() }

// SignDigest returns a DER-encoded ECDSA signature over digest.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, ErrInvalidDigest
	}
	return ecdsa.Sign(s.priv, digest).Serialize(), nil
}

// Verify checks a DER signature produced by SignDigest.
func (s *Signer) Verify(digest, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, s.pub)
}

// Wipe zeroes the private scalar.
func (s *Signer) Wipe() {
	if s.priv != nil {
		s.priv.Zero()
	}
}
