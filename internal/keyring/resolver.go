package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/metrics"
	"github.com/mrz1836/sigil-keyring/internal/network"
	"github.com/mrz1836/sigil-keyring/internal/session"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Target names the account a signer is requested for.
type Target struct {
	Network chain.Network
	Ref     wallet.AccountRef
	Account wallet.Account
}

// signerKey is what decides reuse: the network identity plus the account.
type signerKey struct {
	identity chain.Identity
	ref      wallet.AccountRef
}

// wiper is implemented by software signers that hold key material.
type wiper interface {
	Wipe()
}

// SignerResolver owns zero or one live signer for a keyring and decides
// whether a request can reuse it.
type SignerResolver struct {
	mu       sync.Mutex
	driver   familyDriver
	resolver network.Resolver
	hardware *hardware.Manager
	observer Observer
	logger   LogWriter

	current chain.Signer
	key     signerKey
}

func newSignerResolver(d familyDriver, r network.Resolver, hw *hardware.Manager, obs Observer, logger LogWriter) *SignerResolver {
	return &SignerResolver{
		driver:   d,
		resolver: r,
		hardware: hw,
		observer: obs,
		logger:   logger,
	}
}

// Resolve returns the signer for t. A request whose network identity and
// account match the live signer returns it unchanged. Anything else builds a
// new signer, validates the network, and only then replaces the old one; on
// failure the previous signer stays live.
func (r *SignerResolver) Resolve(ctx context.Context, t Target, h *session.Handle) (chain.Signer, error) {
	if t.Network.Family() != r.driver.family() {
		return nil, fmt.Errorf("%w: %s network %s on a %s keyring",
			sigilerr.ErrCrossFamilySwitch, t.Network.Family(), t.Network, r.driver.family())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := signerKey{identity: t.Network.Identity(), ref: t.Ref}
	if r.current != nil && r.key == key {
		r.observer.ObserveSigner(r.driver.family(), metrics.SignerReused)
		return r.current, nil
	}

	candidate, err := r.build(t, h)
	if err != nil {
		r.observer.ObserveSigner(r.driver.family(), metrics.SignerFailed)
		return nil, err
	}

	if _, err := r.resolver.ResolveNetwork(ctx, t.Network); err != nil {
		wipe(candidate)
		r.observer.ObserveSigner(r.driver.family(), metrics.SignerFailed)
		r.logger.Error("network %s failed validation, keeping previous signer: %v", t.Network, err)
		if !errors.Is(err, sigilerr.ErrNetworkValidation) {
			err = fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
		}
		return nil, err
	}

	wipe(r.current)
	r.current = candidate
	r.key = key
	r.observer.ObserveSigner(r.driver.family(), metrics.SignerRebuilt)
	r.logger.Debug("signer rebuilt for %s account %d on %s", t.Ref.Type, t.Ref.ID, t.Network.Identity())
	return candidate, nil
}

func (r *SignerResolver) build(t Target, h *session.Handle) (chain.Signer, error) {
	if t.Account.IsHardware() {
		return r.hardwareSigner(t)
	}
	if !h.IsValid() {
		return nil, sigilerr.ErrLockedWallet
	}

	var s chain.Signer
	if t.Ref.Type == wallet.HDAccount {
		err := h.WithSeed(func(seed []byte) error {
			var err error
			s, err = r.driver.hdSigner(seed, t.Network, t.Ref.ID)
			return err
		})
		return s, err
	}

	if t.Account.EncryptedPrivateExtendedKey == "" {
		return nil, sigilerr.WithDetails(sigilerr.ErrInvalidPrivateKeyFormat, map[string]string{
			"reason": "account has no stored key",
		})
	}
	err := h.WithKey(func(key []byte) error {
		secret, err := sigilcrypto.Open(t.Account.EncryptedPrivateExtendedKey, key)
		if err != nil {
			return err
		}
		defer sigilcrypto.Zero(secret)
		s, err = r.driver.secretSigner(string(secret), t.Network, t.Ref.ID)
		return err
	})
	return s, err
}

func (r *SignerResolver) hardwareSigner(t Target) (chain.Signer, error) {
	if r.hardware == nil {
		return nil, sigilerr.WithDetails(sigilerr.ErrUnsupportedVendor, map[string]string{
			"vendor": t.Account.HardwareVendor,
			"reason": "no hardware manager configured",
		})
	}
	vendor, err := hardware.ParseVendor(t.Account.HardwareVendor)
	if err != nil {
		return nil, err
	}
	if err := r.driver.validateAddress(t.Account.Address, t.Network); err != nil {
		return nil, sigilerr.WithSuggestion(
			sigilerr.Wrap(sigilerr.ErrNetworkValidation, "%s account %d address %s on %s: %v",
				t.Ref.Type, t.Ref.ID, t.Account.Address, t.Network, err),
			"add the device account again on this network or select another account",
		)
	}
	return hardware.NewSigner(r.hardware, hardware.SignerConfig{
		Vendor:       vendor,
		Network:      t.Network,
		AccountIndex: t.Ref.ID,
		Address:      t.Account.Address,
		Path:         r.driver.accountPath(t.Network, t.Ref.ID),
	}), nil
}

// Current returns the live signer, or nil.
func (r *SignerResolver) Current() chain.Signer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Invalidate drops and wipes the live signer.
func (r *SignerResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	wipe(r.current)
	r.current = nil
	r.key = signerKey{}
}

func wipe(s chain.Signer) {
	if w, ok := s.(wiper); ok {
		w.Wipe()
	}
}
