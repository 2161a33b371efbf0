package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/session"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

var (
	// ErrNoPendingSeed indicates a password was set before a seed phrase.
	ErrNoPendingSeed = sigilerr.WithSuggestion(sigilerr.ErrInvalidSeed, "set a seed phrase before setting the wallet password")

	// ErrEmptyPassword indicates an empty wallet password.
	ErrEmptyPassword = sigilerr.WithDetails(sigilerr.ErrInvalidPassword, map[string]string{"reason": "password is empty"})
)

// Manager is the keyring of one address family. It holds a private copy of
// the vault state, the unlocked session, and the live signer. All methods are
// safe for concurrent use; callers still serialize selection changes if they
// care about their order.
type Manager struct {
	mu      sync.Mutex
	opts    Options
	driver  familyDriver
	signers *SignerResolver

	state   *wallet.VaultState
	pending *sigilcrypto.SecureBytes
	session *session.Handle
	record  *wallet.VaultRecord
}

// New creates a locked keyring with an empty account table.
func New(opts Options) (*Manager, error) {
	d, err := newDriver(opts.Family)
	if err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		return nil, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"field": "storage"})
	}
	opts = opts.withDefaults()
	if opts.ActiveNetwork.Family() != opts.Family {
		return nil, fmt.Errorf("%w: active network %s is not a %s network",
			sigilerr.ErrCrossFamilySwitch, opts.ActiveNetwork, opts.Family)
	}

	state := wallet.NewVaultState(opts.Networks, opts.ActiveNetwork)
	state.AdoptNetwork(opts.ActiveNetwork)

	return &Manager{
		opts:    opts,
		driver:  d,
		signers: newSignerResolver(d, opts.Resolver, opts.Hardware, opts.Observer, opts.Logger),
		state:   state,
	}, nil
}

// Family returns the family the keyring is bound to.
func (m *Manager) Family() chain.Family {
	return m.driver.family()
}

// Signers exposes the signer resolver.
func (m *Manager) Signers() *SignerResolver {
	return m.signers
}

// IsUnlocked reports whether a live session exists.
func (m *Manager) IsUnlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsValid()
}

// ValidateSeed explains whether mnemonic is a valid BIP39 phrase. It never
// fails.
func (m *Manager) ValidateSeed(mnemonic string) SeedValidation {
	ok, msg := wallet.CheckMnemonic(mnemonic)
	return SeedValidation{IsValid: ok, Message: msg}
}

// GenerateMnemonic returns a fresh BIP39 phrase of the given length.
func (m *Manager) GenerateMnemonic(words int) (string, error) {
	return wallet.GenerateMnemonic(words)
}

// SetSeed checks mnemonic and holds it until the wallet password is set.
// It returns the normalized phrase. No accounts are created.
func (m *Manager) SetSeed(mnemonic string) (string, error) {
	normalized := wallet.NormalizeMnemonicInput(mnemonic)
	if err := wallet.ValidateMnemonic(normalized); err != nil {
		return "", err
	}
	sb, err := sigilcrypto.SecureBytesFromSlice([]byte(normalized))
	if err != nil {
		return "", fmt.Errorf("holding seed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Destroy()
	}
	m.pending = sb
	return normalized, nil
}

// SetWalletPassword seals the pending seed under a key derived from password
// with a fresh salt, persists the vault record, and opens a session. The
// account table is reset; the network registry is kept.
func (m *Manager) SetWalletPassword(ctx context.Context, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return ErrNoPendingSeed
	}

	salt, err := sigilcrypto.NewSalt()
	if err != nil {
		return err
	}
	saltBytes, err := sigilcrypto.DecodeSalt(salt)
	if err != nil {
		return err
	}
	key := sigilcrypto.DeriveSessionKey([]byte(password), saltBytes, m.opts.KDF)
	defer sigilcrypto.Zero(key)

	mnemonic := m.pending.Bytes()
	rec, err := wallet.NewVaultRecord(mnemonic, key, salt, m.opts.KDF)
	if err != nil {
		return err
	}
	if err := wallet.SaveVaultRecord(ctx, m.opts.Storage, rec); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}

	if err := m.openSessionLocked(key, mnemonic, salt); err != nil {
		return err
	}
	m.pending.Destroy()
	m.pending = nil
	m.record = rec

	m.state.ResetAccounts()
	m.signers.Invalidate()
	m.opts.Logger.Debug("vault %s created", rec.ID)
	return nil
}

// openSessionLocked replaces the session. key and mnemonic are copied.
func (m *Manager) openSessionLocked(key, mnemonic []byte, salt string) error {
	seed, err := wallet.MnemonicToSeed(string(mnemonic), "")
	if err != nil {
		return err
	}
	h, err := session.Open(session.Secrets{
		Key:      append([]byte(nil), key...),
		Mnemonic: append([]byte(nil), mnemonic...),
		Seed:     seed,
		Salt:     salt,
	}, m.opts.AutoLock)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	m.session.Revoke()
	m.session = h
	return nil
}

// VaultExists reports whether a vault record has been persisted.
func (m *Manager) VaultExists(ctx context.Context) (bool, error) {
	_, err := m.loadRecord(ctx)
	if errors.Is(err, wallet.ErrVaultNotInitialized) {
		return false, nil
	}
	return err == nil, err
}

func (m *Manager) loadRecord(ctx context.Context) (*wallet.VaultRecord, error) {
	m.mu.Lock()
	rec := m.record
	m.mu.Unlock()
	if rec != nil {
		return rec, nil
	}

	rec, err := wallet.LoadVaultRecord(ctx, m.opts.Storage)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.record = rec
	m.mu.Unlock()
	return rec, nil
}

// verifyPassword derives the key for password and checks it against the
// vault record, whatever the lock state. The caller zeroes the key.
func (m *Manager) verifyPassword(ctx context.Context, password string) ([]byte, *wallet.VaultRecord, error) {
	rec, err := m.loadRecord(ctx)
	if err != nil {
		return nil, nil, err
	}
	key, err := rec.DeriveKey([]byte(password))
	if err != nil {
		return nil, nil, err
	}
	if !rec.CheckKey(key) {
		sigilcrypto.Zero(key)
		return nil, nil, sigilerr.ErrInvalidPassword
	}
	return key, rec, nil
}

// LockWallet revokes the session and drops the live signer.
func (m *Manager) LockWallet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Revoke()
	m.session = nil
	m.signers.Invalidate()
	m.opts.Logger.Debug("wallet locked")
}

// Unlock opens a session when password matches the vault. A wrong password,
// a missing vault, or an unreadable record is reported in the result, never
// as an error.
func (m *Manager) Unlock(ctx context.Context, password string) UnlockResult {
	key, rec, err := m.verifyPassword(ctx, password)
	if err != nil {
		m.opts.Observer.ObserveUnlock(false)
		m.opts.Logger.Debug("unlock refused: %v", err)
		return UnlockResult{Message: unlockMessage(err)}
	}
	defer sigilcrypto.Zero(key)

	mnemonic, err := rec.OpenMnemonic(key)
	if err != nil {
		m.opts.Observer.ObserveUnlock(false)
		m.opts.Logger.Error("vault %s did not decrypt: %v", rec.ID, err)
		return UnlockResult{Message: unlockMessage(err)}
	}
	defer sigilcrypto.Zero(mnemonic)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.openSessionLocked(key, mnemonic, rec.Salt); err != nil {
		m.opts.Observer.ObserveUnlock(false)
		return UnlockResult{Message: unlockMessage(err)}
	}
	m.signers.Invalidate()
	m.opts.Observer.ObserveUnlock(true)

	if _, ok := m.state.ActiveAccount(); ok {
		if _, err := m.resolveLocked(ctx, m.state); err != nil {
			m.opts.Logger.Error("resolving signer after unlock: %v", err)
		}
	}
	return UnlockResult{CanLogin: true}
}

func unlockMessage(err error) string {
	switch {
	case errors.Is(err, sigilerr.ErrInvalidPassword):
		return "Invalid password"
	case errors.Is(err, wallet.ErrVaultNotInitialized):
		return "No vault has been created"
	default:
		return err.Error()
	}
}

// ForgetMainWallet deletes the vault and empties the account table. The
// network registry and active network are kept.
func (m *Manager) ForgetMainWallet(ctx context.Context, password string) error {
	key, _, err := m.verifyPassword(ctx, password)
	if err != nil {
		return err
	}
	sigilcrypto.Zero(key)

	if err := wallet.DeleteVaultRecord(ctx, m.opts.Storage); err != nil {
		return fmt.Errorf("deleting vault: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = nil
	m.session.Revoke()
	m.session = nil
	m.signers.Invalidate()
	m.state.ResetAccounts()
	m.opts.Logger.Debug("vault forgotten")
	return nil
}

// ChangePassword re-derives the session key under a new salt, reseals every
// account secret and the seed, and persists the vault. The wallet is left
// unlocked under the new key. Secrets in others, account tables of other
// keyrings sharing the vault, are resealed in place; the caller persists them.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string, others ...*wallet.VaultState) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	oldKey, rec, err := m.verifyPassword(ctx, oldPassword)
	if err != nil {
		return err
	}
	defer sigilcrypto.Zero(oldKey)

	mnemonic, err := rec.OpenMnemonic(oldKey)
	if err != nil {
		return err
	}
	defer sigilcrypto.Zero(mnemonic)

	salt, err := sigilcrypto.NewSalt()
	if err != nil {
		return err
	}
	saltBytes, err := sigilcrypto.DecodeSalt(salt)
	if err != nil {
		return err
	}
	newKey := sigilcrypto.DeriveSessionKey([]byte(newPassword), saltBytes, rec.KDF)
	defer sigilcrypto.Zero(newKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.Clone()
	if err := resealState(next, oldKey, newKey); err != nil {
		return err
	}
	resealed := make([]*wallet.VaultState, len(others))
	for i, o := range others {
		resealed[i] = o.Clone()
		if err := resealState(resealed[i], oldKey, newKey); err != nil {
			return err
		}
	}

	updated := *rec
	if err := updated.Rekey(mnemonic, newKey, salt); err != nil {
		return err
	}
	if err := wallet.SaveVaultRecord(ctx, m.opts.Storage, &updated); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}
	m.record = &updated
	m.state = next
	for i, o := range others {
		*o = *resealed[i]
	}

	if err := m.openSessionLocked(newKey, mnemonic, salt); err != nil {
		return err
	}
	m.signers.Invalidate()
	m.opts.Logger.Debug("vault %s password changed", rec.ID)
	return nil
}

// resealState moves every stored secret of s from oldKey to newKey.
func resealState(s *wallet.VaultState, oldKey, newKey []byte) error {
	for _, t := range wallet.AccountTypes() {
		for _, a := range s.List(t) {
			if a.EncryptedPrivateExtendedKey == "" {
				continue
			}
			resealed, err := reseal(a.EncryptedPrivateExtendedKey, oldKey, newKey)
			if err != nil {
				return fmt.Errorf("resealing %s account %d: %w", t, a.ID, err)
			}
			a.EncryptedPrivateExtendedKey = resealed
		}
	}
	return nil
}

func reseal(sealed string, oldKey, newKey []byte) (string, error) {
	plain, err := sigilcrypto.Open(sealed, oldKey)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(plain)
	return sigilcrypto.Seal(plain, newKey)
}

// sealLocked encrypts an account secret under the session key.
func (m *Manager) sealLocked(secret string) (string, error) {
	var sealed string
	err := m.session.WithKey(func(key []byte) error {
		var err error
		sealed, err = sigilcrypto.Seal([]byte(secret), key)
		return err
	})
	return sealed, err
}

// openLocked decrypts an account secret with the session key.
func (m *Manager) openLocked(sealed string) (string, error) {
	var secret string
	err := m.session.WithKey(func(key []byte) error {
		plain, err := sigilcrypto.Open(sealed, key)
		if err != nil {
			return err
		}
		secret = string(plain)
		sigilcrypto.Zero(plain)
		return nil
	})
	return secret, err
}

// State returns a deep copy of the account table for the caller's store.
func (m *Manager) State() *wallet.VaultState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// LoadState installs a copy of s, typically read back from the caller's
// store. A zero active network keeps the current one. The live signer is
// dropped and rebuilt on next use.
func (m *Manager) LoadState(s *wallet.VaultState) error {
	if s == nil {
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"field": "state"})
	}
	next := s.Clone()
	next.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()
	if next.ActiveNetwork.IsZero() {
		next.ActiveNetwork = m.state.ActiveNetwork
	}
	if next.ActiveNetwork.Family() != m.driver.family() {
		return fmt.Errorf("%w: state is bound to %s network %s",
			sigilerr.ErrCrossFamilySwitch, next.ActiveNetwork.Family(), next.ActiveNetwork)
	}
	next.AdoptNetwork(next.ActiveNetwork)
	m.state = next
	m.signers.Invalidate()
	return nil
}
