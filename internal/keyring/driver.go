package keyring

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/chain/evm"
	"github.com/mrz1836/sigil-keyring/internal/chain/utxo"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// derived is account material produced by a driver. Secret is plaintext and
// must be sealed before it is stored.
type derived struct {
	Address string
	Xpub    string
	Secret  string
}

// familyDriver is the per-family half of the keyring. Exactly two
// implementations exist, utxoDriver and evmDriver, and a Manager holds one
// for its whole lifetime.
type familyDriver interface {
	family() chain.Family

	// networkBound reports whether account material depends on the network,
	// so a network switch has to re-derive every account.
	networkBound() bool

	// deriveHD derives HD account index from a BIP39 seed.
	deriveHD(seed []byte, n chain.Network, index uint32) (derived, error)

	// importKey parses caller-supplied key material.
	importKey(material string, n chain.Network) (derived, error)

	// fromSecret rebuilds imported account material for n from its secret.
	fromSecret(secret string, n chain.Network) (derived, error)

	// hdSigner builds the signer of HD account index.
	hdSigner(seed []byte, n chain.Network, index uint32) (chain.Signer, error)

	// secretSigner builds the signer of an imported account.
	secretSigner(secret string, n chain.Network, index uint32) (chain.Signer, error)

	// fromXpub rebuilds the address of a device account for n from its
	// stored account public key.
	fromXpub(xpub string, n chain.Network) (derived, error)

	// validateAddress checks that an address is encoded for n.
	validateAddress(address string, n chain.Network) error

	// accountPath returns the account derivation path a device signs with.
	accountPath(n chain.Network, index uint32) string
}

func newDriver(f chain.Family) (familyDriver, error) {
	switch f {
	case chain.FamilyUTXO:
		return utxoDriver{}, nil
	case chain.FamilyEVM:
		return evmDriver{}, nil
	default:
		return nil, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"family": string(f)})
	}
}

// invalidKeyFormat reports malformed import material with a reason.
func invalidKeyFormat(reason string) error {
	return sigilerr.Wrap(sigilerr.ErrInvalidPrivateKeyFormat, "%s", reason)
}

// rawHexKey decodes a 64-character hex private key, with or without 0x.
func rawHexKey(s string) ([]byte, bool) {
	return evm.ParsePrivateKeyHex(s)
}

type utxoDriver struct{}

func (utxoDriver) family() chain.Family { return chain.FamilyUTXO }

func (utxoDriver) networkBound() bool { return true }

func (utxoDriver) deriveHD(seed []byte, n chain.Network, index uint32) (derived, error) {
	acct, err := utxo.DeriveAccount(seed, n, index)
	if err != nil {
		return derived{}, err
	}
	return derived{Address: acct.Address, Xpub: acct.Xpub, Secret: acct.Xprv}, nil
}

func (d utxoDriver) importKey(material string, n chain.Network) (derived, error) {
	material = strings.TrimSpace(material)
	if raw, ok := rawHexKey(material); ok {
		defer zero(raw)
		return d.fromRaw(raw, n)
	}
	if !utxo.LooksExtended(material) {
		return derived{}, invalidKeyFormat("expected a 64-character hex private key or a zprv/vprv extended key")
	}

	v := utxo.ValidateZprv(material, &n)
	if !v.IsValid {
		return derived{}, invalidKeyFormat(v.Message)
	}
	return d.fromSecret(material, n)
}

func (d utxoDriver) fromSecret(secret string, n chain.Network) (derived, error) {
	if !utxo.LooksExtended(secret) {
		raw, err := hex.DecodeString(secret)
		if err != nil {
			return derived{}, invalidKeyFormat("stored key is not hex")
		}
		defer zero(raw)
		return d.fromRaw(raw, n)
	}
	acct, err := utxo.AccountFromXprv(secret, n)
	if err != nil {
		return derived{}, invalidKeyFormat(err.Error())
	}
	return derived{Address: acct.Address, Xpub: acct.Xpub, Secret: acct.Xprv}, nil
}

func (utxoDriver) fromRaw(raw []byte, n chain.Network) (derived, error) {
	acct, err := utxo.AccountFromPrivateKey(raw, n)
	if err != nil {
		return derived{}, invalidKeyFormat(err.Error())
	}
	return derived{Address: acct.Address, Xpub: acct.Xpub, Secret: acct.Xprv}, nil
}

func (utxoDriver) hdSigner(seed []byte, n chain.Network, index uint32) (chain.Signer, error) {
	key, err := utxo.AccountKey(seed, n, index)
	if err != nil {
		return nil, err
	}
	return utxo.NewSigner(key, n, index)
}

func (utxoDriver) secretSigner(secret string, n chain.Network, index uint32) (chain.Signer, error) {
	if utxo.LooksExtended(secret) {
		key, err := hdkeychain.NewKeyFromString(secret)
		if err != nil {
			return nil, fmt.Errorf("parsing stored key: %w", err)
		}
		return utxo.NewSigner(key, n, index)
	}
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return nil, invalidKeyFormat("stored key is not hex")
	}
	defer zero(raw)
	return utxo.NewRawSigner(raw, n, index)
}

func (utxoDriver) fromXpub(xpub string, n chain.Network) (derived, error) {
	acct, err := utxo.AccountFromXpub(xpub, n)
	if err != nil {
		return derived{}, err
	}
	return derived{Address: acct.Address, Xpub: acct.Xpub}, nil
}

func (utxoDriver) validateAddress(address string, n chain.Network) error {
	return utxo.ValidateAddress(address, n)
}

func (utxoDriver) accountPath(n chain.Network, index uint32) string {
	return utxo.AccountPath(n, index)
}

type evmDriver struct{}

func (evmDriver) family() chain.Family { return chain.FamilyEVM }

func (evmDriver) networkBound() bool { return false }

func (evmDriver) deriveHD(seed []byte, _ chain.Network, index uint32) (derived, error) {
	acct, err := evm.DeriveAccount(seed, index)
	if err != nil {
		return derived{}, err
	}
	return derived{Address: acct.Address, Xpub: acct.PublicKey, Secret: acct.PrivateKey}, nil
}

func (d evmDriver) importKey(material string, n chain.Network) (derived, error) {
	material = strings.TrimSpace(material)
	if utxo.LooksExtended(material) {
		return derived{}, invalidKeyFormat(fmt.Sprintf("extended key '%s' cannot be imported on EVM networks", utxo.Prefix(material)))
	}
	if _, ok := rawHexKey(material); !ok {
		return derived{}, invalidKeyFormat("expected a 64-character hex private key")
	}
	return d.fromSecret(material, n)
}

func (evmDriver) fromSecret(secret string, _ chain.Network) (derived, error) {
	raw, ok := rawHexKey(secret)
	if !ok {
		return derived{}, invalidKeyFormat("expected a 64-character hex private key")
	}
	defer zero(raw)
	acct, err := evm.AccountFromPrivateKey(raw)
	if err != nil {
		return derived{}, invalidKeyFormat(err.Error())
	}
	return derived{Address: acct.Address, Xpub: acct.PublicKey, Secret: acct.PrivateKey}, nil
}

func (evmDriver) hdSigner(seed []byte, n chain.Network, index uint32) (chain.Signer, error) {
	return evm.NewSigner(seed, n, index)
}

func (evmDriver) secretSigner(secret string, n chain.Network, index uint32) (chain.Signer, error) {
	raw, ok := rawHexKey(secret)
	if !ok {
		return nil, invalidKeyFormat("stored key is not hex")
	}
	defer zero(raw)
	return evm.NewRawSigner(raw, n, index)
}

func (evmDriver) fromXpub(string, chain.Network) (derived, error) {
	return derived{}, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{
		"reason": "EVM device accounts are not network bound",
	})
}

func (evmDriver) validateAddress(address string, _ chain.Network) error {
	return evm.ValidateAddress(address)
}

func (evmDriver) accountPath(_ chain.Network, index uint32) string {
	return evm.AccountPath(index)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
