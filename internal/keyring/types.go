package keyring

import (
	"time"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/network"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
)

// Default account labels are numbered from 1.
const (
	hdLabelFormat       = "Account %d"
	importedLabelFormat = "Imported %d"
	hardwareLabelFormat = "%s %d"
)

// Options configures a Manager.
type Options struct {
	// Family binds the keyring to one address family for its lifetime.
	Family chain.Family

	// Storage persists the encrypted vault record. Required.
	Storage wallet.Storage

	// Resolver validates a network before a signer for it is committed.
	// Defaults to network.Static.
	Resolver network.Resolver

	// Hardware is the device connection pool. Hardware accounts are
	// unavailable when nil.
	Hardware *hardware.Manager

	// KDF sets the session key derivation cost for new vaults.
	KDF sigilcrypto.KDFParams

	// AutoLock expires the session after this long. Zero disables it.
	AutoLock time.Duration

	// Networks seeds the network registry. Defaults to chain.DefaultNetworks.
	Networks []chain.Network

	// ActiveNetwork is the initial network. Defaults to the first built-in
	// network of Family.
	ActiveNetwork chain.Network

	Logger   LogWriter
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Resolver == nil {
		o.Resolver = network.Static{}
	}
	if o.KDF.Iterations <= 0 {
		o.KDF = sigilcrypto.DefaultKDFParams()
	}
	if o.Networks == nil {
		o.Networks = chain.DefaultNetworks()
	}
	if o.ActiveNetwork.IsZero() {
		o.ActiveNetwork = chain.DefaultNetwork(o.Family)
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// SeedValidation reports whether a phrase is a usable seed. Message explains
// a failure, including typo suggestions.
type SeedValidation struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message,omitempty"`
}

// SwitchResult is the outcome of a network switch.
type SwitchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Rebuilt is true when the switch replaced the live signer.
	Rebuilt bool `json:"rebuilt"`
}

// UnlockResult is the outcome of an unlock attempt.
type UnlockResult struct {
	CanLogin bool   `json:"canLogin"`
	Message  string `json:"message,omitempty"`
}
