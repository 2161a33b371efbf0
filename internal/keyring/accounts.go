package keyring

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/chain/utxo"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

func accountNotFound(t wallet.AccountType, id uint32) error {
	return sigilerr.WithDetails(sigilerr.ErrAccountNotFound, map[string]string{
		"type": string(t),
		"id":   strconv.FormatUint(uint64(id), 10),
	})
}

// CreateKeyringVault derives HD account 0 for the active network and makes
// it active. It fails with ErrAccountExists once HD accounts exist.
func (m *Manager) CreateKeyringVault(ctx context.Context) (wallet.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.state.Accounts[wallet.HDAccount]) > 0 {
		return wallet.Account{}, sigilerr.WithSuggestion(sigilerr.ErrAccountExists, "use AddNewAccount to derive further accounts")
	}
	return m.addHDLocked(ctx, "")
}

// AddNewAccount derives the next HD account for the active network and
// makes it active.
func (m *Manager) AddNewAccount(ctx context.Context, label string) (wallet.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addHDLocked(ctx, label)
}

func (m *Manager) addHDLocked(ctx context.Context, label string) (wallet.Account, error) {
	if !m.session.IsValid() {
		return wallet.Account{}, sigilerr.ErrLockedWallet
	}

	next := m.state.Clone()
	id := next.NextID(wallet.HDAccount)

	var d derived
	err := m.session.WithSeed(func(seed []byte) error {
		var err error
		d, err = m.driver.deriveHD(seed, next.ActiveNetwork, id)
		return err
	})
	if err != nil {
		return wallet.Account{}, err
	}
	sealed, err := m.sealLocked(d.Secret)
	if err != nil {
		return wallet.Account{}, err
	}

	if strings.TrimSpace(label) == "" {
		label = fmt.Sprintf(hdLabelFormat, id+1)
	}
	acct := &wallet.Account{
		Label:                       label,
		Address:                     d.Address,
		PublicExtendedKey:           d.Xpub,
		EncryptedPrivateExtendedKey: sealed,
	}
	if _, err := next.Insert(wallet.HDAccount, acct); err != nil {
		return wallet.Account{}, err
	}
	next.ActiveAccountType = wallet.HDAccount
	next.ActiveAccountID = id

	if _, err := m.commitLocked(ctx, next); err != nil {
		return wallet.Account{}, err
	}
	m.opts.Logger.Debug("added HD account %d on %s", id, next.ActiveNetwork)
	return acct.Public(), nil
}

// SetActiveAccount selects an existing account and re-evaluates the live
// signer, even when the selection is unchanged.
func (m *Manager) SetActiveAccount(ctx context.Context, id uint32, t wallet.AccountType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.Account(t, id); !ok {
		return accountNotFound(t, id)
	}
	next := m.state.Clone()
	next.ActiveAccountType = t
	next.ActiveAccountID = id
	_, err := m.commitLocked(ctx, next)
	return err
}

// ActiveAccount returns a display copy of the active account and its type.
func (m *Manager) ActiveAccount() (wallet.Account, wallet.AccountType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state.ActiveAccount()
	if !ok {
		return wallet.Account{}, "", accountNotFound(m.state.ActiveAccountType, m.state.ActiveAccountID)
	}
	return a.Public(), m.state.ActiveAccountType, nil
}

// Accounts returns display copies of the accounts of type t ordered by id.
func (m *Manager) Accounts(t wallet.AccountType) []wallet.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.state.List(t)
	out := make([]wallet.Account, 0, len(list))
	for _, a := range list {
		out = append(out, a.Public())
	}
	return out
}

// ImportAccount imports a raw hex private key or, on UTXO keyrings, a BIP84
// extended private key. The account is sealed, labelled, and made active.
// The key is checked against n, or the active network when n is nil, and
// its address must also be valid on the active network.
func (m *Manager) ImportAccount(ctx context.Context, keyMaterial, label string, n *chain.Network) (wallet.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.IsValid() {
		return wallet.Account{}, sigilerr.ErrLockedWallet
	}

	next := m.state.Clone()
	target := next.ActiveNetwork
	if n != nil {
		if n.Family() != m.driver.family() {
			return wallet.Account{}, fmt.Errorf("%w: %s is a %s network", sigilerr.ErrCrossFamilySwitch, n, n.Family())
		}
		target = *n
	}
	d, err := m.driver.importKey(keyMaterial, target)
	if err != nil {
		return wallet.Account{}, err
	}
	if err := m.driver.validateAddress(d.Address, next.ActiveNetwork); err != nil {
		return wallet.Account{}, sigilerr.WithSuggestion(
			sigilerr.Wrap(sigilerr.ErrNetworkValidation, "key for %s does not fit active network %s: %v", target, next.ActiveNetwork, err),
			"switch to that network before importing the key",
		)
	}
	if t, id, dup := findAddress(next, d.Address); dup {
		return wallet.Account{}, sigilerr.WithDetails(sigilerr.ErrAccountExists, map[string]string{
			"address": d.Address,
			"type":    string(t),
			"id":      strconv.FormatUint(uint64(id), 10),
		})
	}

	sealed, err := m.sealLocked(d.Secret)
	if err != nil {
		return wallet.Account{}, err
	}

	id := next.NextID(wallet.Imported)
	if strings.TrimSpace(label) == "" {
		label = fmt.Sprintf(importedLabelFormat, id+1)
	}
	acct := &wallet.Account{
		Label:                       label,
		Address:                     d.Address,
		PublicExtendedKey:           d.Xpub,
		EncryptedPrivateExtendedKey: sealed,
		IsImported:                  true,
	}
	if _, err := next.Insert(wallet.Imported, acct); err != nil {
		return wallet.Account{}, err
	}
	next.ActiveAccountType = wallet.Imported
	next.ActiveAccountID = id

	if _, err := m.commitLocked(ctx, next); err != nil {
		return wallet.Account{}, err
	}
	m.opts.Logger.Debug("imported account %d", id)
	return acct.Public(), nil
}

func findAddress(s *wallet.VaultState, address string) (wallet.AccountType, uint32, bool) {
	for _, t := range wallet.AccountTypes() {
		for _, a := range s.Accounts[t] {
			if strings.EqualFold(a.Address, address) {
				return t, a.ID, true
			}
		}
	}
	return "", 0, false
}

// ValidateZprv checks an extended key against n, or against the active
// network on UTXO keyrings when n is nil. It never fails.
func (m *Manager) ValidateZprv(key string, n *chain.Network) utxo.ZprvValidation {
	if n == nil && m.driver.family() == chain.FamilyUTXO {
		active := m.ActiveNetwork()
		n = &active
	}
	return utxo.ValidateZprv(key, n)
}

// AddHardwareAccount records a device account after confirming the device
// is reachable. The active selection is unchanged.
func (m *Manager) AddHardwareAccount(ctx context.Context, vendor hardware.Vendor, address, xpub, label string) (wallet.Account, error) {
	if m.opts.Hardware == nil {
		return wallet.Account{}, sigilerr.WithDetails(sigilerr.ErrUnsupportedVendor, map[string]string{
			"vendor": vendor.String(),
			"reason": "no hardware manager configured",
		})
	}
	t := wallet.Ledger
	if vendor == hardware.VendorTrezor {
		t = wallet.Trezor
	}

	m.mu.Lock()
	active := m.state.ActiveNetwork
	m.mu.Unlock()
	if err := m.driver.validateAddress(address, active); err != nil {
		return wallet.Account{}, sigilerr.Wrap(sigilerr.ErrInvalidInput, "hardware account address: %v", err)
	}

	if err := m.opts.Hardware.EnsureConnection(ctx, vendor); err != nil {
		return wallet.Account{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, _, dup := findAddress(m.state, address); dup {
		return wallet.Account{}, sigilerr.WithDetails(sigilerr.ErrAccountExists, map[string]string{"address": address})
	}
	id := m.state.NextID(t)
	if strings.TrimSpace(label) == "" {
		label = fmt.Sprintf(hardwareLabelFormat, t, id+1)
	}
	acct := &wallet.Account{
		Label:             label,
		Address:           address,
		PublicExtendedKey: xpub,
		HardwareVendor:    vendor.String(),
	}
	if _, err := m.state.Insert(t, acct); err != nil {
		return wallet.Account{}, err
	}
	m.opts.Logger.Debug("added %s account %d", t, id)
	return acct.Public(), nil
}

// RemoveAccount deletes an imported or hardware account. HD accounts and the
// active account cannot be removed; the id is never reassigned.
func (m *Manager) RemoveAccount(t wallet.AccountType, id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.Account(t, id); !ok {
		return accountNotFound(t, id)
	}
	if t == wallet.HDAccount {
		return sigilerr.WithSuggestion(sigilerr.ErrPermission, "HD accounts are derived from the seed and cannot be removed")
	}
	if t == m.state.ActiveAccountType && id == m.state.ActiveAccountID {
		return sigilerr.WithSuggestion(sigilerr.ErrPermission, "select another account before removing the active one")
	}
	return m.state.Remove(t, id)
}

// SetAccountLabel renames an account.
func (m *Manager) SetAccountLabel(t wallet.AccountType, id uint32, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"field": "label"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state.Account(t, id)
	if !ok {
		return accountNotFound(t, id)
	}
	a.Label = label
	return nil
}

// PrivateKeyByAccountID returns the plaintext key of an account. The
// password is checked against the vault whatever the lock state.
func (m *Manager) PrivateKeyByAccountID(ctx context.Context, id uint32, t wallet.AccountType, password string) (string, error) {
	key, _, err := m.verifyPassword(ctx, password)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(key)

	m.mu.Lock()
	a, ok := m.state.Account(t, id)
	var sealed string
	var hw bool
	if ok {
		sealed = a.EncryptedPrivateExtendedKey
		hw = a.IsHardware()
	}
	m.mu.Unlock()

	if !ok {
		return "", accountNotFound(t, id)
	}
	if hw || sealed == "" {
		return "", sigilerr.WithSuggestion(sigilerr.ErrPermission, "hardware account keys never leave the device")
	}
	plain, err := sigilcrypto.Open(sealed, key)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(plain)
	return string(plain), nil
}

// EncryptedXprv returns the sealed key of the active account after checking
// the password.
func (m *Manager) EncryptedXprv(ctx context.Context, password string) (string, error) {
	key, _, err := m.verifyPassword(ctx, password)
	if err != nil {
		return "", err
	}
	sigilcrypto.Zero(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.ActiveAccount()
	if !ok {
		return "", accountNotFound(m.state.ActiveAccountType, m.state.ActiveAccountID)
	}
	if a.EncryptedPrivateExtendedKey == "" {
		return "", sigilerr.WithSuggestion(sigilerr.ErrPermission, "hardware account keys never leave the device")
	}
	return a.EncryptedPrivateExtendedKey, nil
}

// Seed returns the mnemonic after checking the password.
func (m *Manager) Seed(ctx context.Context, password string) (string, error) {
	key, rec, err := m.verifyPassword(ctx, password)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(key)

	mnemonic, err := rec.OpenMnemonic(key)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(mnemonic)
	return string(mnemonic), nil
}

// AccountXpub returns the public key material of the active account.
func (m *Manager) AccountXpub() (string, error) {
	a, _, err := m.ActiveAccount()
	if err != nil {
		return "", err
	}
	return a.PublicExtendedKey, nil
}
