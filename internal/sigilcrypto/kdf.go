package sigilcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

const (
	// SessionKeyLength is the size in bytes of a derived session key.
	SessionKeyLength = 32

	// SaltLength is the size in bytes of a vault salt.
	SaltLength = 16

	// DefaultKDFIterations is the PBKDF2 iteration count for session keys.
	DefaultKDFIterations = 210_000

	// checksumLabel domain-separates the password checksum from other key uses.
	checksumLabel = "sigil-keyring/vault-checksum/v1"
)

// ErrDecryption is returned when ciphertext cannot be opened with the given key.
var ErrDecryption = sigilerr.ErrDecryption

// ErrInvalidSalt indicates a salt that cannot be decoded.
var ErrInvalidSalt = errors.New("invalid vault salt")

// KDFParams configures session key derivation.
type KDFParams struct {
	Iterations int `yaml:"iterations" json:"iterations"`
}

// DefaultKDFParams returns the production key derivation parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{Iterations: DefaultKDFIterations}
}

// DeriveSessionKey derives the one-way session key from a password and salt
// using PBKDF2-HMAC-SHA512. It is deterministic and has no side effects.
func DeriveSessionKey(password, salt []byte, params KDFParams) []byte {
	iterations := params.Iterations
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return pbkdf2.Key(password, salt, iterations, SessionKeyLength, sha512.New)
}

// NewSalt returns a fresh random vault salt encoded as hex.
func NewSalt() (string, error) {
	b, err := randomBytes(SaltLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DecodeSalt decodes a hex vault salt.
func DecodeSalt(salt string) ([]byte, error) {
	b, err := hex.DecodeString(salt)
	if err != nil || len(b) == 0 {
		return nil, ErrInvalidSalt
	}
	return b, nil
}

// KeyChecksum returns a hex HMAC-SHA256 tag that lets a vault verify a derived
// key without decrypting anything.
func KeyChecksum(key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(checksumLabel))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyKeyChecksum reports whether key matches the stored checksum in
// constant time.
func VerifyKeyChecksum(key []byte, checksum string) bool {
	want, err := hex.DecodeString(checksum)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(checksumLabel))
	return hmac.Equal(mac.Sum(nil), want)
}

// Zero overwrites b with zeros.
// runtime.KeepAlive prevents the compiler from optimizing away the zeroing
// as a dead store when the slice is not used afterward.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
