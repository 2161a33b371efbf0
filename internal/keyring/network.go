package keyring

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// SetSignerNetwork makes n the active network. A network of the other family
// is refused with a failed result and ErrCrossFamilySwitch. On UTXO keyrings
// every software account is re-derived for n, which needs an unlocked
// wallet. The signer is rebuilt only when the network identity changes, and
// nothing is committed if n fails validation. n joins the registry only when
// its chain id is new; registered entries change through AddNetwork.
func (m *Manager) SetSignerNetwork(ctx context.Context, n chain.Network) (SwitchResult, error) {
	if n.Family() != m.driver.family() {
		msg := fmt.Sprintf("cannot switch a %s keyring to %s network %s", m.driver.family(), n.Family(), n)
		return SwitchResult{Message: msg}, fmt.Errorf("%w: %s", sigilerr.ErrCrossFamilySwitch, msg)
	}
	if err := n.Validate(); err != nil {
		return SwitchResult{Message: err.Error()}, fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.Clone()
	next.ActiveNetwork = n
	next.AdoptNetwork(n)

	if m.driver.networkBound() && m.state.ActiveNetwork.Identity() != n.Identity() {
		if err := m.rederiveLocked(next, m.state.ActiveNetwork); err != nil {
			return SwitchResult{Message: err.Error()}, err
		}
	}

	rebuilt, err := m.commitLocked(ctx, next)
	if err != nil {
		return SwitchResult{Message: err.Error()}, err
	}
	m.opts.Logger.Debug("active network is now %s (signer rebuilt: %t)", n.Identity(), rebuilt)
	return SwitchResult{Success: true, Rebuilt: rebuilt}, nil
}

// rederiveLocked recomputes the address material of every account in s for
// s.ActiveNetwork, coming from prev. Ids and labels are kept. Device accounts
// are rebuilt from their account public key while the coin type is unchanged;
// otherwise their keys live under another path and they are left for the
// signer to reject.
func (m *Manager) rederiveLocked(s *wallet.VaultState, prev chain.Network) error {
	for _, t := range []wallet.AccountType{wallet.Trezor, wallet.Ledger} {
		for _, a := range s.List(t) {
			if a.PublicExtendedKey == "" || prev.Slip44 != s.ActiveNetwork.Slip44 {
				continue
			}
			d, err := m.driver.fromXpub(a.PublicExtendedKey, s.ActiveNetwork)
			if err != nil {
				m.opts.Logger.Debug("keeping %s account %d address: %v", t, a.ID, err)
				continue
			}
			a.Address = d.Address
			a.PublicExtendedKey = d.Xpub
		}
	}

	if !hasSoftwareAccounts(s) {
		return nil
	}
	if !m.session.IsValid() {
		return sigilerr.WithSuggestion(sigilerr.ErrLockedWallet, "unlock the wallet to re-derive accounts for the new network")
	}

	for _, a := range s.List(wallet.HDAccount) {
		var d derived
		err := m.session.WithSeed(func(seed []byte) error {
			var err error
			d, err = m.driver.deriveHD(seed, s.ActiveNetwork, a.ID)
			return err
		})
		if err != nil {
			return fmt.Errorf("re-deriving HD account %d: %w", a.ID, err)
		}
		sealed, err := m.sealLocked(d.Secret)
		if err != nil {
			return err
		}
		a.Address = d.Address
		a.PublicExtendedKey = d.Xpub
		a.EncryptedPrivateExtendedKey = sealed
	}

	for _, a := range s.List(wallet.Imported) {
		secret, err := m.openLocked(a.EncryptedPrivateExtendedKey)
		if err != nil {
			return fmt.Errorf("opening imported account %d: %w", a.ID, err)
		}
		d, err := m.driver.fromSecret(secret, s.ActiveNetwork)
		if err != nil {
			return fmt.Errorf("re-deriving imported account %d: %w", a.ID, err)
		}
		a.Address = d.Address
		a.PublicExtendedKey = d.Xpub
	}
	return nil
}

func hasSoftwareAccounts(s *wallet.VaultState) bool {
	return len(s.Accounts[wallet.HDAccount]) > 0 || len(s.Accounts[wallet.Imported]) > 0
}

// commitLocked installs next once the signer for its active account and
// network is resolved. When the wallet is locked and the active account
// holds software keys, only the network is validated and the signer is
// dropped. It reports whether the live signer was replaced.
func (m *Manager) commitLocked(ctx context.Context, next *wallet.VaultState) (bool, error) {
	active, ok := next.ActiveAccount()
	if !ok || (!active.IsHardware() && !m.session.IsValid()) {
		if _, err := m.opts.Resolver.ResolveNetwork(ctx, next.ActiveNetwork); err != nil {
			if !errors.Is(err, sigilerr.ErrNetworkValidation) {
				err = fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
			}
			return false, err
		}
		rebuilt := m.signers.Current() != nil
		m.signers.Invalidate()
		m.state = next
		return rebuilt, nil
	}

	prev := m.signers.Current()
	s, err := m.resolveLocked(ctx, next)
	if err != nil {
		return false, err
	}
	m.state = next
	return s != prev, nil
}

// resolveLocked resolves the signer for the active account of s.
func (m *Manager) resolveLocked(ctx context.Context, s *wallet.VaultState) (chain.Signer, error) {
	a, ok := s.ActiveAccount()
	if !ok {
		return nil, accountNotFound(s.ActiveAccountType, s.ActiveAccountID)
	}
	return m.signers.Resolve(ctx, Target{
		Network: s.ActiveNetwork,
		Ref:     wallet.AccountRef{Type: s.ActiveAccountType, ID: s.ActiveAccountID},
		Account: *a,
	}, m.session)
}

// Signer returns the signer of the active account on the active network. For
// hardware accounts the device connection is ensured first.
func (m *Manager) Signer(ctx context.Context) (chain.Signer, error) {
	m.mu.Lock()
	a, ok := m.state.ActiveAccount()
	var vendor string
	if ok {
		vendor = a.HardwareVendor
	}
	m.mu.Unlock()

	if vendor != "" && m.opts.Hardware != nil {
		v, err := hardware.ParseVendor(vendor)
		if err != nil {
			return nil, err
		}
		if err := m.opts.Hardware.EnsureConnection(ctx, v); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(ctx, m.state)
}

// ActiveNetwork returns the active network.
func (m *Manager) ActiveNetwork() chain.Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ActiveNetwork
}

// Networks returns the registered networks of the keyring's family ordered
// by chain id.
func (m *Manager) Networks() []chain.Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.NetworkList(m.driver.family())
}

// AddNetwork validates n and registers it, replacing any network of the
// same family and chain id. The active network is unchanged.
func (m *Manager) AddNetwork(ctx context.Context, n chain.Network) error {
	if n.Family() != m.driver.family() {
		return fmt.Errorf("%w: %s is a %s network", sigilerr.ErrCrossFamilySwitch, n, n.Family())
	}
	if _, err := m.opts.Resolver.ResolveNetwork(ctx, n); err != nil {
		if !errors.Is(err, sigilerr.ErrNetworkValidation) {
			err = fmt.Errorf("%w: %w", sigilerr.ErrNetworkValidation, err)
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.state.Network(n.Family(), n.ChainID); ok && existing.Default {
		return sigilerr.WithSuggestion(sigilerr.ErrPermission, "built-in networks cannot be replaced")
	}
	n.Default = false
	m.state.PutNetwork(n)
	return nil
}

// RemoveNetwork unregisters a network of the keyring's family. Built-in and
// active networks cannot be removed.
func (m *Manager) RemoveNetwork(chainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.driver.family()
	n, ok := m.state.Network(f, chainID)
	if !ok {
		return sigilerr.WithDetails(sigilerr.ErrNotFound, map[string]string{
			"resource": "network",
			"chain_id": strconv.FormatUint(chainID, 10),
		})
	}
	if n.Default {
		return sigilerr.WithSuggestion(sigilerr.ErrPermission, "built-in networks cannot be removed")
	}
	if n.ChainID == m.state.ActiveNetwork.ChainID {
		return sigilerr.WithSuggestion(sigilerr.ErrPermission, "switch to another network before removing the active one")
	}
	m.state.DeleteNetwork(f, chainID)
	return nil
}
