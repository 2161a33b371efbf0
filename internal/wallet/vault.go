package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Storage keys.
const (
	// VaultRecordKey holds the encrypted seed record.
	VaultRecordKey = "vault"

	// StateRecordKey holds the account table and network registry.
	StateRecordKey = "state"
)

// VaultRecordVersion is the current vault record format.
const VaultRecordVersion = 1

var (
	// ErrVaultNotInitialized indicates no vault record has been written yet.
	ErrVaultNotInitialized = sigilerr.ErrVaultNotInitialized

	// ErrUnsupportedVaultVersion indicates a record written by a newer release.
	ErrUnsupportedVaultVersion = sigilerr.WithSuggestion(sigilerr.ErrConfigInvalid, "upgrade sigil-keyring to read this vault")
)

// VaultRecord is the persisted, encrypted seed. The mnemonic is an age scrypt
// blob whose passphrase is the hex session key, so only a holder of the
// password-derived key can open it.
type VaultRecord struct {
	Version           int                   `json:"version"`
	ID                string                `json:"id"`
	CreatedAt         time.Time             `json:"createdAt"`
	Salt              string                `json:"salt"`
	KDF               sigilcrypto.KDFParams `json:"kdf"`
	KeyChecksum       string                `json:"keyChecksum"`
	EncryptedMnemonic []byte                `json:"encryptedMnemonic"`
}

// NewVaultRecord encrypts mnemonic under key and records how key was derived.
func NewVaultRecord(mnemonic, key []byte, salt string, kdf sigilcrypto.KDFParams) (*VaultRecord, error) {
	blob, err := sealMnemonic(mnemonic, key)
	if err != nil {
		return nil, err
	}
	return &VaultRecord{
		Version:           VaultRecordVersion,
		ID:                uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		Salt:              salt,
		KDF:               kdf,
		KeyChecksum:       sigilcrypto.KeyChecksum(key),
		EncryptedMnemonic: blob,
	}, nil
}

// DeriveKey derives the session key for password with this record's salt and
// KDF parameters.
func (r *VaultRecord) DeriveKey(password []byte) ([]byte, error) {
	salt, err := sigilcrypto.DecodeSalt(r.Salt)
	if err != nil {
		return nil, err
	}
	return sigilcrypto.DeriveSessionKey(password, salt, r.KDF), nil
}

// CheckKey reports whether key was derived from the vault password.
func (r *VaultRecord) CheckKey(key []byte) bool {
	return sigilcrypto.VerifyKeyChecksum(key, r.KeyChecksum)
}

// OpenMnemonic decrypts the mnemonic. A key that fails the checksum yields
// ErrInvalidPassword without attempting decryption.
func (r *VaultRecord) OpenMnemonic(key []byte) ([]byte, error) {
	if !r.CheckKey(key) {
		return nil, sigilerr.ErrInvalidPassword
	}
	return sigilcrypto.Decrypt(r.EncryptedMnemonic, hex.EncodeToString(key))
}

// Rekey re-encrypts the mnemonic under a new key and salt. The record id and
// creation time are kept.
func (r *VaultRecord) Rekey(mnemonic, key []byte, salt string) error {
	blob, err := sealMnemonic(mnemonic, key)
	if err != nil {
		return err
	}
	r.Salt = salt
	r.KeyChecksum = sigilcrypto.KeyChecksum(key)
	r.EncryptedMnemonic = blob
	return nil
}

func sealMnemonic(mnemonic, key []byte) ([]byte, error) {
	if len(key) != sigilcrypto.SessionKeyLength {
		return nil, fmt.Errorf("session key must be %d bytes", sigilcrypto.SessionKeyLength)
	}
	blob, err := sigilcrypto.Encrypt(mnemonic, hex.EncodeToString(key))
	if err != nil {
		return nil, fmt.Errorf("encrypting mnemonic: %w", err)
	}
	return blob, nil
}

// SaveVaultRecord writes the record under VaultRecordKey.
func SaveVaultRecord(ctx context.Context, s Storage, r *VaultRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding vault record: %w", err)
	}
	return s.Set(ctx, VaultRecordKey, data)
}

// LoadVaultRecord reads the record, returning ErrVaultNotInitialized when the
// vault has not been created.
func LoadVaultRecord(ctx context.Context, s Storage) (*VaultRecord, error) {
	data, err := s.Get(ctx, VaultRecordKey)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrVaultNotInitialized
	}
	if err != nil {
		return nil, err
	}
	var r VaultRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, sigilerr.Wrap(sigilerr.ErrDecryption, "decoding vault record: %v", err)
	}
	if r.Version > VaultRecordVersion {
		return nil, ErrUnsupportedVaultVersion
	}
	return &r, nil
}

// DeleteVaultRecord removes the vault record.
func DeleteVaultRecord(ctx context.Context, s Storage) error {
	return s.Set(ctx, VaultRecordKey, nil)
}

// SaveState writes the account table under StateRecordKey.
func SaveState(ctx context.Context, s Storage, state *VaultState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding vault state: %w", err)
	}
	return s.Set(ctx, StateRecordKey, data)
}

// LoadState reads the account table. found is false when no state has been
// saved yet.
func LoadState(ctx context.Context, s Storage) (state *VaultState, found bool, err error) {
	data, err := s.Get(ctx, StateRecordKey)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state = &VaultState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, false, fmt.Errorf("decoding vault state: %w", err)
	}
	state.Normalize()
	return state, true, nil
}
