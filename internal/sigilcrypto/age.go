package sigilcrypto

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"

	"filippo.io/age"
)

// DefaultScryptWorkFactor is the age scrypt log2(N) used for vault blobs.
const DefaultScryptWorkFactor = 18

// maxVaultBlob bounds how much plaintext Decrypt will read from one blob.
const maxVaultBlob = 1 << 20

//nolint:gochecknoglobals // tests lower it to keep vault round trips fast
var scryptWorkFactor atomic.Int32

//nolint:gochecknoinits // the default must be set before the first Encrypt
func init() {
	scryptWorkFactor.Store(DefaultScryptWorkFactor)
}

// SetScryptWorkFactor sets the age scrypt work factor used by Encrypt.
// Values outside [1, 30] are ignored.
func SetScryptWorkFactor(logN int) {
	if logN < 1 || logN > 30 {
		return
	}
	scryptWorkFactor.Store(int32(logN)) //nolint:gosec // G115: bounded above
}

// ScryptWorkFactor returns the current age scrypt work factor.
func ScryptWorkFactor() int {
	return int(scryptWorkFactor.Load())
}

// Encrypt wraps plaintext in an age file for a scrypt passphrase recipient.
// The vault passes the hex session key, so the blob only opens for a
// password that derives the same key.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("vault recipient: %w", err)
	}
	recipient.SetWorkFactor(ScryptWorkFactor())

	var blob bytes.Buffer
	w, err := age.Encrypt(&blob, recipient)
	if err != nil {
		return nil, fmt.Errorf("starting vault blob: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing vault blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sealing vault blob: %w", err)
	}
	return blob.Bytes(), nil
}

// Decrypt opens a blob written by Encrypt. Every failure, a wrong passphrase
// included, wraps ErrDecryption.
func Decrypt(blob []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: vault identity: %w", ErrDecryption, err)
	}
	// blobs are written with the configured factor; accept anything up to the
	// production default plus headroom
	identity.SetMaxWorkFactor(max(ScryptWorkFactor(), DefaultScryptWorkFactor) + 4)

	r, err := age.Decrypt(bytes.NewReader(blob), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	plaintext, err := io.ReadAll(io.LimitReader(r, maxVaultBlob))
	if err != nil {
		Zero(plaintext)
		return nil, fmt.Errorf("%w: reading vault blob: %w", ErrDecryption, err)
	}
	return plaintext, nil
}
