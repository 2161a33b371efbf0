package utxo

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

var (
	// ErrUnknownHRP indicates no segwit HRP is known for a network.
	ErrUnknownHRP = errors.New("no bech32 prefix known for network")

	// ErrInvalidAddress indicates the address is not a segwit address for the network.
	ErrInvalidAddress = errors.New("invalid segwit address for network")
)

// HRP returns the bech32 human-readable part for a network. An explicit
// Network.Bech32HRP wins; otherwise it is looked up by SLIP44 coin type.
func HRP(n chain.Network) (string, error) {
	if n.Bech32HRP != "" {
		return n.Bech32HRP, nil
	}
	switch n.Slip44 {
	case chain.CoinTypeBitcoin:
		return "bc", nil
	case chain.CoinTypeTestnet:
		return "tb", nil
	case chain.CoinTypeLitecoin:
		return "ltc", nil
	case chain.CoinTypeSyscoin:
		if n.IsTestnet {
			return "tsys", nil
		}
		return "sys", nil
	default:
		return "", fmt.Errorf("%w: slip44 %d", ErrUnknownHRP, n.Slip44)
	}
}

// params builds the chaincfg parameters needed to encode segwit addresses
// and BIP84 master keys for a network.
func params(n chain.Network) (*chaincfg.Params, error) {
	hrp, err := HRP(n)
	if err != nil {
		return nil, err
	}
	p := &chaincfg.Params{Name: n.Label, Bech32HRPSegwit: hrp}
	copy(p.HDPrivateKeyID[:], privateVersion(n.IsTestnet))
	copy(p.HDPublicKeyID[:], publicVersion(n.IsTestnet))
	return p, nil
}

// P2WPKHAddress encodes the native segwit v0 address of a public key.
func P2WPKHAddress(pub *btcec.PublicKey, n chain.Network) (string, error) {
	p, err := params(n)
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), p)
	if err != nil {
		return "", fmt.Errorf("encoding address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// ValidateAddress checks that address is a P2WPKH address for the network.
// The bech32 payload is decoded directly because chaincfg only recognizes
// the HRPs of registered networks.
func ValidateAddress(address string, n chain.Network) error {
	hrp, err := HRP(n)
	if err != nil {
		return err
	}
	gotHRP, data, err := bech32.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if gotHRP != hrp || len(data) < 1 || data[0] != 0 {
		return ErrInvalidAddress
	}
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil || len(program) != 20 {
		return ErrInvalidAddress
	}
	return nil
}
