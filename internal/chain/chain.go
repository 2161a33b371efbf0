// Package chain provides the network model shared by the keyring: address
// families, network records and their identity, the Signer contract, and
// common retry and rate limiting utilities.
package chain

import (
	"fmt"
	"strings"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Family is the address-derivation scheme a network belongs to.
type Family string

// Supported families.
const (
	FamilyUTXO Family = "utxo"
	FamilyEVM  Family = "evm"
)

// SLIP44 coin types referenced by the keyring.
const (
	CoinTypeBitcoin  uint32 = 0
	CoinTypeTestnet  uint32 = 1
	CoinTypeLitecoin uint32 = 2
	CoinTypeSyscoin  uint32 = 57
	CoinTypeEVM      uint32 = 60
)

// String returns the family name.
func (f Family) String() string {
	return string(f)
}

// IsValid returns true if f is a known family.
func (f Family) IsValid() bool {
	switch f {
	case FamilyUTXO, FamilyEVM:
		return true
	default:
		return false
	}
}

// ParseFamily parses a family name.
func ParseFamily(s string) (Family, bool) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	return f, f.IsValid()
}

// Network describes a chain endpoint the keyring can sign for.
type Network struct {
	ChainID   uint64 `yaml:"chain_id" json:"chainId"`
	URL       string `yaml:"url" json:"url"`
	Label     string `yaml:"label" json:"label"`
	Currency  string `yaml:"currency" json:"currency"`
	Slip44    uint32 `yaml:"slip44" json:"slip44"`
	IsTestnet bool   `yaml:"testnet" json:"isTestnet"`
	Default   bool   `yaml:"default" json:"default"`

	// Bech32HRP overrides the segwit human-readable part for UTXO networks.
	Bech32HRP string `yaml:"bech32_hrp,omitempty" json:"bech32Hrp,omitempty"`
}

// Identity is the triple that decides whether a signer can be reused.
// Two networks sharing a chain id but differing in URL or SLIP44 are distinct.
type Identity struct {
	ChainID uint64
	Slip44  uint32
	URL     string
}

// String formats the identity for logs.
func (i Identity) String() string {
	return fmt.Sprintf("%d/%d@%s", i.ChainID, i.Slip44, i.URL)
}

// Family classifies the network. EVM networks use SLIP44 coin type 60.
func (n Network) Family() Family {
	if n.Slip44 == CoinTypeEVM {
		return FamilyEVM
	}
	return FamilyUTXO
}

// Identity returns the signer-reuse identity of the network.
func (n Network) Identity() Identity {
	return Identity{ChainID: n.ChainID, Slip44: n.Slip44, URL: n.URL}
}

// IsZero reports whether n is the zero network.
func (n Network) IsZero() bool {
	return n == Network{}
}

// Validate checks the fields required to build a signer.
func (n Network) Validate() error {
	if strings.TrimSpace(n.URL) == "" {
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{
			"field":   "url",
			"network": n.Label,
		})
	}
	if n.Family() == FamilyEVM && n.ChainID == 0 {
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{
			"field":   "chain_id",
			"network": n.Label,
		})
	}
	return nil
}

// String returns the network label, falling back to its identity.
func (n Network) String() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Identity().String()
}

// UTXONetwork is a Network known to belong to the UTXO family.
// Only NewUTXONetwork can produce a non-zero value.
type UTXONetwork struct {
	n Network
}

// NewUTXONetwork wraps n, failing if it is an EVM network.
func NewUTXONetwork(n Network) (UTXONetwork, error) {
	if n.Family() != FamilyUTXO {
		return UTXONetwork{}, fmt.Errorf("%w: %s is an %s network", sigilerr.ErrCrossFamilySwitch, n, n.Family())
	}
	return UTXONetwork{n: n}, nil
}

// Network returns the underlying network record.
func (u UTXONetwork) Network() Network {
	return u.n
}

// EVMNetwork is a Network known to belong to the EVM family.
// Only NewEVMNetwork can produce a non-zero value.
type EVMNetwork struct {
	n Network
}

// NewEVMNetwork wraps n, failing if it is a UTXO network.
func NewEVMNetwork(n Network) (EVMNetwork, error) {
	if n.Family() != FamilyEVM {
		return EVMNetwork{}, fmt.Errorf("%w: %s is a %s network", sigilerr.ErrCrossFamilySwitch, n, n.Family())
	}
	return EVMNetwork{n: n}, nil
}

// Network returns the underlying network record.
func (e EVMNetwork) Network() Network {
	return e.n
}

// Signer is a live, network-bound key capable of producing signatures for
// one account. Transaction builders consume it.
type Signer interface {
	// Family returns the address family the signer derives for.
	Family() Family

	// Network returns the network the signer was built for.
	Network() Network

	// AccountIndex returns the account id the signer was built for.
	AccountIndex() uint32

	// Address returns the receiving address of the account on Network.
	Address() string

	// PublicKey returns the compressed (UTXO) or uncompressed (EVM) public key.
	PublicKey() []byte

	// SignDigest signs a 32-byte digest.
	SignDigest(digest []byte) ([]byte, error)
}

// ChainConfig is what a network's RPC endpoint reports about itself.
type ChainConfig struct {
	ChainID     uint64 `json:"chainId"`
	Coin        string `json:"coin,omitempty"`
	Chain       string `json:"chain,omitempty"`
	Testnet     bool   `json:"testnet"`
	BlockHeight uint64 `json:"blockHeight,omitempty"`
}

// ResolvedNetwork is a network whose endpoint has been checked against its
// record. Signers are only committed after resolution succeeds.
type ResolvedNetwork struct {
	Network     Network     `json:"network"`
	ChainConfig ChainConfig `json:"chainConfig"`
}

// DefaultNetworks returns the built-in network registry.
func DefaultNetworks() []Network {
	return []Network{
		{
			ChainID:  57,
			URL:      "https://blockbook.syscoin.org",
			Label:    "Syscoin Mainnet",
			Currency: "sys",
			Slip44:   CoinTypeSyscoin,
			Default:  true,
		},
		{
			ChainID:   5700,
			URL:       "https://blockbook-dev.syscoin.org",
			Label:     "Syscoin Testnet",
			Currency:  "tsys",
			Slip44:    CoinTypeTestnet,
			IsTestnet: true,
			Default:   true,
			Bech32HRP: "tsys",
		},
		{
			ChainID:  1,
			URL:      "https://ethereum-rpc.publicnode.com",
			Label:    "Ethereum Mainnet",
			Currency: "eth",
			Slip44:   CoinTypeEVM,
			Default:  true,
		},
		{
			ChainID:   11155111,
			URL:       "https://ethereum-sepolia-rpc.publicnode.com",
			Label:     "Sepolia",
			Currency:  "eth",
			Slip44:    CoinTypeEVM,
			IsTestnet: true,
			Default:   true,
		},
		{
			ChainID:  57,
			URL:      "https://rpc.syscoin.org",
			Label:    "Syscoin NEVM",
			Currency: "sys",
			Slip44:   CoinTypeEVM,
			Default:  true,
		},
	}
}

// DefaultNetwork returns the first built-in network of the given family.
func DefaultNetwork(f Family) Network {
	for _, n := range DefaultNetworks() {
		if n.Family() == f {
			return n
		}
	}
	return Network{}
}
