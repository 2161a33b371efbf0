package sigilcrypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// randReader feeds salts and nonces.
//
//nolint:gochecknoglobals // replaced in tests to simulate entropy failure
var randReader io.Reader = rand.Reader

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("reading entropy: %w", err)
	}
	return b, nil
}

// sealVersion prefixes every sealed payload so the format can evolve.
const sealVersion byte = 1

// Seal encrypts plaintext under a session key with XChaCha20-Poly1305 and
// returns base64(version || nonce || ciphertext).
func Seal(plaintext, key []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{sealVersion})

	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. A wrong key or a corrupted payload yields ErrDecryption,
// never partial plaintext.
func Open(sealed string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrDecryption)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != sealVersion {
		return nil, fmt.Errorf("%w: truncated or unknown payload", ErrDecryption)
	}

	nonce := raw[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], []byte{sealVersion})
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}

	return plaintext, nil
}
