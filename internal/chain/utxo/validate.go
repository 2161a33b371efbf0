package utxo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// ZprvValidation is the outcome of ValidateZprv. Failures are reported in
// Message, never as an error.
type ZprvValidation struct {
	IsValid bool
	Message string

	// Node is the parsed key when IsValid is true.
	Node *hdkeychain.ExtendedKey
	// Network is the network the key was checked against, if any.
	Network *chain.Network
}

// UnsupportedPrefixMessage is the rejection text for non-BIP84 extended keys.
func UnsupportedPrefixMessage(prefix string) string {
	return fmt.Sprintf("Invalid key prefix '%s'. Only BIP84 keys (zprv/vprv) are supported", prefix)
}

// ValidateZprv checks that key is a BIP84 extended private key with intact
// Base58Check encoding. When network is non-nil the key's mainnet/testnet
// prefix must match the network.
func ValidateZprv(key string, network *chain.Network) ZprvValidation {
	key = strings.TrimSpace(key)
	prefix := Prefix(key)

	if prefix != PrefixZprv && prefix != PrefixVprv {
		return ZprvValidation{Message: UnsupportedPrefixMessage(prefix)}
	}

	node, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return ZprvValidation{Message: decodeFailureMessage(err)}
	}

	if !node.IsPrivate() {
		return ZprvValidation{Message: "Key is not a private extended key"}
	}

	versionPrefix, ok := prefixForVersion(node.Version())
	if !ok || versionPrefix != prefix {
		return ZprvValidation{Message: fmt.Sprintf("Key version bytes do not match prefix '%s'", prefix)}
	}

	if network != nil {
		if network.Family() != chain.FamilyUTXO {
			return ZprvValidation{Message: fmt.Sprintf("Network %s is not a UTXO network", network)}
		}
		keyTestnet := prefix == PrefixVprv
		if keyTestnet != network.IsTestnet {
			return ZprvValidation{Message: networkMismatchMessage(prefix, *network)}
		}
	}

	return ZprvValidation{
		IsValid: true,
		Message: "Valid BIP84 extended private key",
		Node:    node,
		Network: network,
	}
}

func decodeFailureMessage(err error) string {
	switch {
	case errors.Is(err, hdkeychain.ErrBadChecksum):
		return "Invalid checksum: the key is corrupted or mistyped"
	case errors.Is(err, hdkeychain.ErrInvalidKeyLen):
		return "Invalid key length"
	case errors.Is(err, hdkeychain.ErrUnusableSeed):
		return "Key is out of range for secp256k1"
	default:
		return fmt.Sprintf("Invalid extended key: %v", err)
	}
}

func networkMismatchMessage(prefix string, n chain.Network) string {
	if prefix == PrefixZprv {
		return fmt.Sprintf("Mainnet key (zprv) cannot be used on testnet network %s", n)
	}
	return fmt.Sprintf("Testnet key (vprv) cannot be used on mainnet network %s", n)
}
