package utxo

import (
	"bytes"
	"strings"
)

// Version bytes of the SLIP-0132 extended key serializations.
//
//nolint:gochecknoglobals // Fixed serialization constants
var (
	versionZprv = []byte{0x04, 0xb2, 0x43, 0x0c}
	versionZpub = []byte{0x04, 0xb2, 0x47, 0x46}
	versionVprv = []byte{0x04, 0x5f, 0x18, 0xbc}
	versionVpub = []byte{0x04, 0x5f, 0x1c, 0xf6}

	// xprv/tprv are registered with chaincfg and used to neuter keys.
	versionXprv = []byte{0x04, 0x88, 0xad, 0xe4}
	versionTprv = []byte{0x04, 0x35, 0x83, 0x94}
)

// Extended key prefixes accepted for import.
const (
	PrefixZprv = "zprv"
	PrefixVprv = "vprv"
)

// knownPrefixes lists every extended-key prefix recognized for error
// reporting. Only zprv and vprv are importable.
//
//nolint:gochecknoglobals // Lookup table
var knownPrefixes = map[string]bool{
	"xprv": true, "xpub": true,
	"yprv": true, "ypub": true,
	"zprv": true, "zpub": true,
	"Yprv": true, "Ypub": true,
	"Zprv": true, "Zpub": true,
	"tprv": true, "tpub": true,
	"uprv": true, "upub": true,
	"vprv": true, "vpub": true,
	"Uprv": true, "Upub": true,
	"Vprv": true, "Vpub": true,
}

// Prefix returns the four-character prefix of an extended key, or the whole
// trimmed input when it is shorter.
func Prefix(key string) string {
	key = strings.TrimSpace(key)
	if len(key) < 4 {
		return key
	}
	return key[:4]
}

// IsExtendedKeyPrefix reports whether p is a recognized extended-key prefix.
func IsExtendedKeyPrefix(p string) bool {
	return knownPrefixes[p]
}

// LooksExtended reports whether key carries a recognized extended-key prefix.
func LooksExtended(key string) bool {
	return IsExtendedKeyPrefix(Prefix(key))
}

// privateVersion returns the BIP84 private version for a network.
func privateVersion(testnet bool) []byte {
	if testnet {
		return versionVprv
	}
	return versionZprv
}

// publicVersion returns the BIP84 public version for a network.
func publicVersion(testnet bool) []byte {
	if testnet {
		return versionVpub
	}
	return versionZpub
}

// prefixForVersion maps BIP84 private version bytes back to their prefix.
func prefixForVersion(version []byte) (string, bool) {
	switch {
	case bytes.Equal(version, versionZprv):
		return PrefixZprv, true
	case bytes.Equal(version, versionVprv):
		return PrefixVprv, true
	default:
		return "", false
	}
}
