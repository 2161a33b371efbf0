// Package evm derives, imports, and signs for accounts on EVM networks.
// HD accounts follow m/44'/60'/0'/0/index; the account id is the address index.
package evm

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// PrivateKeyLength is the size of a raw secp256k1 private key.
const PrivateKeyLength = 32

var (
	// ErrInvalidPrivateKey indicates raw key material that is not a valid secp256k1 scalar.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidAddress indicates a malformed EVM address.
	ErrInvalidAddress = errors.New("invalid EVM address")
)

// Account is the derived material of one EVM account.
type Account struct {
	// Index is the address index in m/44'/60'/0'/0/index.
	Index uint32
	// Path is the full derivation path.
	Path string
	// Address is the EIP-55 checksummed address.
	Address string
	// PublicKey is the uncompressed public key as 0x-hex.
	PublicKey string
	// PrivateKey is the raw private key as 0x-hex. The caller must seal it.
	PrivateKey string
}

// AccountPath returns the derivation path of an EVM account index.
func AccountPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", chain.CoinTypeEVM, index)
}

// DeriveAccount derives EVM account index from a BIP39 seed.
func DeriveAccount(seed []byte, index uint32) (*Account, error) {
	raw, err := DerivePrivateKey(seed, index)
	if err != nil {
		return nil, err
	}
	defer zero(raw)

	acct, err := AccountFromPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	acct.Index = index
	acct.Path = AccountPath(index)
	return acct, nil
}

// DerivePrivateKey returns the 32-byte private key of account index.
// The returned key must be zeroed by the caller after use.
func DerivePrivateKey(seed []byte, index uint32) ([]byte, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + chain.CoinTypeEVM,
		bip32.FirstHardenedChild,
		0,
		index,
	}

	key := masterKey
	for _, i := range path {
		key, err = key.NewChildKey(i)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key at index %d: %w", i, err)
		}
	}

	// Left-pad in case the serialized scalar is short
	out := make([]byte, PrivateKeyLength)
	copy(out[PrivateKeyLength-len(key.Key):], key.Key)
	return out, nil
}

// AccountFromPrivateKey builds account material from a raw private key.
func AccountFromPrivateKey(raw []byte) (*Account, error) {
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	pub, ok := priv.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}

	return &Account{
		Address:    crypto.PubkeyToAddress(*pub).Hex(),
		PublicKey:  "0x" + hex.EncodeToString(crypto.FromECDSAPub(pub)),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(priv)),
	}, nil
}

// ParsePrivateKeyHex decodes a 64-character hex key, with or without a 0x
// prefix. It reports false for anything else.
func ParsePrivateKeyHex(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != PrivateKeyLength*2 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// ValidateAddress checks that address is a 20-byte hex address.
func ValidateAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return ErrInvalidAddress
	}
	if _, err := hex.DecodeString(address[2:]); err != nil {
		return ErrInvalidAddress
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
