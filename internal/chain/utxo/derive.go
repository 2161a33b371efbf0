// Package utxo derives, validates, and signs for BIP84 native segwit
// accounts on UTXO networks.
package utxo

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// purposeBIP84 is the BIP43 purpose for native segwit accounts.
const purposeBIP84 = 84

// ErrInvalidPrivateKey indicates raw key material of the wrong size or range.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// ErrNotPublicKey indicates a private extended key where a zpub or vpub was expected.
var ErrNotPublicKey = errors.New("expected a public extended key")

// Account is the derived material of one BIP84 account.
type Account struct {
	// Index is the hardened account index.
	Index uint32
	// Path is the account-level derivation path.
	Path string
	// Address is the first external address, m/.../0/0.
	Address string
	// Xpub is the account zpub or vpub.
	Xpub string
	// Xprv is the account zprv or vprv. The caller must seal it.
	Xprv string
}

// AccountPath returns the BIP84 account path for a network and index.
func AccountPath(n chain.Network, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'", purposeBIP84, n.Slip44, index)
}

// DeriveAccount derives BIP84 account index from a BIP39 seed for a network.
func DeriveAccount(seed []byte, n chain.Network, index uint32) (*Account, error) {
	key, err := AccountKey(seed, n, index)
	if err != nil {
		return nil, err
	}
	acct, err := accountFromKey(key, n)
	if err != nil {
		return nil, err
	}
	acct.Index = index
	acct.Path = AccountPath(n, index)
	return acct, nil
}

// AccountKey returns the extended private key at m/84'/slip44'/index'.
func AccountKey(seed []byte, n chain.Network, index uint32) (*hdkeychain.ExtendedKey, error) {
	p, err := params(n)
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	purpose, err := master.Derive(hdkeychain.HardenedKeyStart + purposeBIP84)
	if err != nil {
		return nil, fmt.Errorf("failed to derive purpose key: %w", err)
	}

	coinType, err := purpose.Derive(hdkeychain.HardenedKeyStart + n.Slip44)
	if err != nil {
		return nil, fmt.Errorf("failed to derive coin type key: %w", err)
	}

	account, err := coinType.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}

	return account, nil
}

// AccountFromXprv rebuilds account material from an imported zprv or vprv.
// The key is re-serialized with the version bytes of the network.
func AccountFromXprv(xprv string, n chain.Network) (*Account, error) {
	key, err := hdkeychain.NewKeyFromString(xprv)
	if err != nil {
		return nil, fmt.Errorf("parsing extended key: %w", err)
	}
	if !key.IsPrivate() {
		return nil, hdkeychain.ErrNotPrivExtKey
	}
	key, err = key.CloneWithVersion(privateVersion(n.IsTestnet))
	if err != nil {
		return nil, err
	}
	return accountFromKey(key, n)
}

// AccountFromXpub rebuilds the public material of an account from its zpub
// or vpub, re-versioned and encoded for n. Xprv is left empty. The key is
// only meaningful for n when n shares the coin type it was derived under.
func AccountFromXpub(xpub string, n chain.Network) (*Account, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("parsing extended key: %w", err)
	}
	if key.IsPrivate() {
		return nil, ErrNotPublicKey
	}
	key, err = key.CloneWithVersion(publicVersion(n.IsTestnet))
	if err != nil {
		return nil, err
	}

	first, err := ReceiveKey(key)
	if err != nil {
		return nil, err
	}
	pub, err := first.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	address, err := P2WPKHAddress(pub, n)
	if err != nil {
		return nil, err
	}
	return &Account{Address: address, Xpub: key.String()}, nil
}

// AccountFromPrivateKey builds single-key account material from a raw
// 32-byte secp256k1 private key. Xprv carries the key as hex and Xpub the
// compressed public key.
func AccountFromPrivateKey(raw []byte, n chain.Network) (*Account, error) {
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPrivateKey, len(raw))
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	address, err := P2WPKHAddress(pub, n)
	if err != nil {
		return nil, err
	}
	return &Account{
		Address: address,
		Xpub:    hex.EncodeToString(pub.SerializeCompressed()),
		Xprv:    hex.EncodeToString(priv.Serialize()),
	}, nil
}

// ReceiveKey derives the first external key, /0/0, of an account key.
func ReceiveKey(account *hdkeychain.ExtendedKey) (*hdkeychain.ExtendedKey, error) {
	external, err := account.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive external chain: %w", err)
	}
	first, err := external.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address key: %w", err)
	}
	return first, nil
}

// Neuter returns the BIP84 public counterpart of an account key. The key is
// neutered under the registered xprv/tprv version and re-versioned, because
// chaincfg has no zpub/vpub mapping.
func Neuter(key *hdkeychain.ExtendedKey, testnet bool) (*hdkeychain.ExtendedKey, error) {
	base := versionXprv
	if testnet {
		base = versionTprv
	}
	std, err := key.CloneWithVersion(base)
	if err != nil {
		return nil, err
	}
	pub, err := std.Neuter()
	if err != nil {
		return nil, fmt.Errorf("failed to neuter key: %w", err)
	}
	return pub.CloneWithVersion(publicVersion(testnet))
}

func accountFromKey(key *hdkeychain.ExtendedKey, n chain.Network) (*Account, error) {
	xpub, err := Neuter(key, n.IsTestnet)
	if err != nil {
		return nil, err
	}

	first, err := ReceiveKey(key)
	if err != nil {
		return nil, err
	}
	pub, err := first.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	address, err := P2WPKHAddress(pub, n)
	if err != nil {
		return nil, err
	}

	return &Account{
		Address: address,
		Xpub:    xpub.String(),
		Xprv:    key.String(),
	}, nil
}
