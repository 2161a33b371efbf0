package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// minPasswordLength is enforced on new vault passwords.
const minPasswordLength = 8

// Prompt functions are variables so tests can replace them.
//
//nolint:gochecknoglobals // test seams
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptSecretFn      = promptSecret
)

// promptPassword prompts for a password with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() fits in int
	outln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// promptNewPassword prompts for a new password with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPasswordFn("Enter new wallet password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLength {
		sigilcrypto.Zero(password)
		return nil, sigilerr.WithSuggestion(
			sigilerr.ErrInvalidPassword,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		)
	}

	confirm, err := promptPasswordFn("Confirm password: ")
	if err != nil {
		sigilcrypto.Zero(password)
		return nil, err
	}
	defer sigilcrypto.Zero(confirm)

	if string(password) != string(confirm) {
		sigilcrypto.Zero(password)
		return nil, sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "passwords do not match")
	}
	return password, nil
}

// promptSecret reads a recovery phrase or private key without echo.
func promptSecret(prompt string) (string, error) {
	b, err := promptPasswordFn(prompt)
	if err != nil {
		return "", err
	}
	defer sigilcrypto.Zero(b)

	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "no input provided")
	}
	return s, nil
}

// withPassword prompts once and passes the password to fn as a string,
// zeroing the prompt buffer afterwards.
func withPassword(prompt string, fn func(password string) error) error {
	pw, err := promptPasswordFn(prompt)
	if err != nil {
		return err
	}
	defer sigilcrypto.Zero(pw)
	return fn(string(pw))
}
