// Package session holds the unlocked-vault secrets for the lifetime of an
// unlock. A Handle is acquired on unlock, passed explicitly to every operation
// that needs key material, and revoked on lock. Secrets live in mlocked
// buffers and are zeroed on revocation.
package session

import (
	"sync"
	"time"

	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Default auto-lock bounds.
const (
	// MaxTTL is the maximum allowed auto-lock duration.
	MaxTTL = 24 * time.Hour

	// MinTTL is the minimum allowed auto-lock duration.
	MinTTL = 1 * time.Minute
)

// ErrRevoked is returned when a revoked or expired handle is used.
var ErrRevoked = sigilerr.ErrLockedWallet

// Secrets is the material a Handle takes ownership of. The byte slices are
// copied into secure memory and the originals are zeroed.
type Secrets struct {
	// Key is the password-derived session key.
	Key []byte
	// Mnemonic is the decrypted BIP39 phrase.
	Mnemonic []byte
	// Seed is the BIP39 seed derived from Mnemonic.
	Seed []byte
	// Salt is the hex vault salt Key was derived with.
	Salt string
}

// Handle is an unlocked vault session.
type Handle struct {
	mu        sync.RWMutex
	key       *sigilcrypto.SecureBytes
	mnemonic  *sigilcrypto.SecureBytes
	seed      *sigilcrypto.SecureBytes
	salt      string
	createdAt time.Time
	expiresAt time.Time
	revoked   bool
}

// Open creates a Handle from freshly derived secrets. A ttl of zero disables
// auto-lock; otherwise it is clamped to [MinTTL, MaxTTL].
func Open(secrets Secrets, ttl time.Duration) (*Handle, error) {
	defer sigilcrypto.Zero(secrets.Key)
	defer sigilcrypto.Zero(secrets.Mnemonic)
	defer sigilcrypto.Zero(secrets.Seed)

	key, err := sigilcrypto.SecureBytesFromSlice(secrets.Key)
	if err != nil {
		return nil, err
	}
	mnemonic, err := sigilcrypto.SecureBytesFromSlice(secrets.Mnemonic)
	if err != nil {
		key.Destroy()
		return nil, err
	}
	seed, err := sigilcrypto.SecureBytesFromSlice(secrets.Seed)
	if err != nil {
		key.Destroy()
		mnemonic.Destroy()
		return nil, err
	}

	now := time.Now()
	h := &Handle{
		key:       key,
		mnemonic:  mnemonic,
		seed:      seed,
		salt:      secrets.Salt,
		createdAt: now,
	}
	if ttl > 0 {
		if ttl < MinTTL {
			ttl = MinTTL
		}
		if ttl > MaxTTL {
			ttl = MaxTTL
		}
		h.expiresAt = now.Add(ttl)
	}
	return h, nil
}

// IsValid returns true if the handle is neither revoked nor expired.
func (h *Handle) IsValid() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.validLocked()
}

func (h *Handle) validLocked() bool {
	if h.revoked {
		return false
	}
	return h.expiresAt.IsZero() || time.Now().Before(h.expiresAt)
}

// TTL returns the remaining time until auto-lock.
// Returns 0 when auto-lock is disabled or the handle has expired.
func (h *Handle) TTL() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.expiresAt.IsZero() {
		return 0
	}
	remaining := time.Until(h.expiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CreatedAt returns when the handle was opened.
func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

// Salt returns the hex salt the session key was derived with.
func (h *Handle) Salt() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.salt
}

// WithKey runs fn with the session key. The slice must not be retained.
func (h *Handle) WithKey(fn func(key []byte) error) error {
	return h.with(func() *sigilcrypto.SecureBytes { return h.key }, fn)
}

// WithMnemonic runs fn with the decrypted mnemonic. The slice must not be retained.
func (h *Handle) WithMnemonic(fn func(mnemonic []byte) error) error {
	return h.with(func() *sigilcrypto.SecureBytes { return h.mnemonic }, fn)
}

// WithSeed runs fn with the BIP39 seed. The slice must not be retained.
func (h *Handle) WithSeed(fn func(seed []byte) error) error {
	return h.with(func() *sigilcrypto.SecureBytes { return h.seed }, fn)
}

func (h *Handle) with(pick func() *sigilcrypto.SecureBytes, fn func([]byte) error) error {
	if h == nil {
		return ErrRevoked
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.validLocked() {
		return ErrRevoked
	}
	return fn(pick().Bytes())
}

// Revoke zeroes every secret. Safe to call multiple times.
func (h *Handle) Revoke() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return
	}
	h.key.Destroy()
	h.mnemonic.Destroy()
	h.seed.Destroy()
	h.revoked = true
}
