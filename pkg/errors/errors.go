// Package errors is the keyring's error taxonomy. Every failure a caller can
// act on is a *SigilError sentinel carrying a stable code and a CLI exit code;
// helpers attach context without losing the sentinel identity.
//
//nolint:revive // shadows the stdlib package on purpose
package errors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Exit codes for the CLI.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitInput      = 2
	ExitAuth       = 3
	ExitNotFound   = 4
	ExitPermission = 5
)

const generalCode = "GENERAL_ERROR"

// SigilError is a classified failure.
type SigilError struct {
	// Code is stable and machine readable, e.g. WALLET_LOCKED.
	Code    string
	Message string
	// Details are rendered sorted by key.
	Details    map[string]string
	Suggestion string
	Cause      error
	ExitCode   int
}

func (e *SigilError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		fmt.Fprintf(&sb, " (%s: %s)", k, e.Details[k])
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *SigilError) Unwrap() error {
	return e.Cause
}

// Is matches any SigilError with the same code, so a decorated copy still
// satisfies errors.Is against its sentinel.
func (e *SigilError) Is(target error) bool {
	t, ok := target.(*SigilError)
	return ok && e.Code == t.Code
}

// Classes every domain error folds into.
var (
	ErrGeneral      = &SigilError{Code: generalCode, Message: "an error occurred", ExitCode: ExitGeneral}
	ErrInvalidInput = &SigilError{Code: "INVALID_INPUT", Message: "invalid input", ExitCode: ExitInput}
	ErrNotFound     = &SigilError{Code: "NOT_FOUND", Message: "resource not found", ExitCode: ExitNotFound}
	ErrPermission   = &SigilError{Code: "PERMISSION_DENIED", Message: "permission denied", ExitCode: ExitPermission}
)

// Keyring and vault failures.
var (
	ErrInvalidSeed             = &SigilError{Code: "INVALID_SEED", Message: "invalid seed phrase", ExitCode: ExitInput}
	ErrInvalidPassword         = &SigilError{Code: "INVALID_PASSWORD", Message: "invalid password", ExitCode: ExitAuth}
	ErrAccountNotFound         = &SigilError{Code: "ACCOUNT_NOT_FOUND", Message: "account not found", ExitCode: ExitNotFound}
	ErrAccountExists           = &SigilError{Code: "ACCOUNT_EXISTS", Message: "account already exists", ExitCode: ExitInput}
	ErrLockedWallet            = &SigilError{Code: "WALLET_LOCKED", Message: "wallet is locked", ExitCode: ExitAuth}
	ErrVaultNotInitialized     = &SigilError{Code: "VAULT_NOT_INITIALIZED", Message: "vault is not initialized", ExitCode: ExitNotFound}
	ErrInvalidPrivateKeyFormat = &SigilError{Code: "INVALID_PRIVATE_KEY_FORMAT", Message: "invalid private key format", ExitCode: ExitInput}
	ErrCrossFamilySwitch       = &SigilError{Code: "CROSS_FAMILY_SWITCH", Message: "network belongs to a different chain family than this keyring", ExitCode: ExitInput}
	ErrNetworkValidation       = &SigilError{Code: "NETWORK_VALIDATION_FAILED", Message: "network validation failed", ExitCode: ExitGeneral}
	ErrDecryption              = &SigilError{Code: "DECRYPTION_FAILED", Message: "decryption failed - wrong key or corrupted data", ExitCode: ExitAuth}
)

// Hardware wallet failures.
var (
	ErrConnectionExhausted = &SigilError{Code: "CONNECTION_EXHAUSTED", Message: "hardware wallet connection failed after all retries", ExitCode: ExitGeneral}
	ErrUserCancelled       = &SigilError{Code: "USER_CANCELLED", Message: "hardware wallet request cancelled by user", ExitCode: ExitGeneral}
	ErrUnsupportedVendor   = &SigilError{Code: "UNSUPPORTED_VENDOR", Message: "unsupported hardware wallet vendor", ExitCode: ExitInput}
)

// Configuration failures.
var (
	ErrConfigInvalid = &SigilError{Code: "CONFIG_INVALID", Message: "configuration file is invalid", ExitCode: ExitInput}
)

// derive returns a copy of the SigilError inside err, keeping err as the
// cause. Unclassified errors become GENERAL_ERROR.
func derive(err error) *SigilError {
	var se *SigilError
	if !errors.As(err, &se) {
		return &SigilError{Code: generalCode, Message: err.Error(), Cause: err, ExitCode: ExitGeneral}
	}
	out := *se
	out.Details = maps.Clone(se.Details)
	return &out
}

// Wrap puts a formatted context in front of err. The sentinel identity
// survives and err becomes the cause, so the message reads "context: err".
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	out := derive(err)
	out.Message = fmt.Sprintf(format, args...)
	out.Details = nil
	out.Cause = err
	return out
}

// WithDetails merges details into err. Later keys win.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}
	out := derive(err)
	if out.Details == nil {
		out.Details = make(map[string]string, len(details))
	}
	maps.Copy(out.Details, details)
	return out
}

// WithSuggestion sets the remedy shown under the error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	out := derive(err)
	out.Suggestion = suggestion
	return out
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *SigilError
	if errors.As(err, &se) {
		return se.ExitCode
	}
	return ExitGeneral
}

// Code returns err's machine code, GENERAL_ERROR when unclassified.
func Code(err error) string {
	var se *SigilError
	if errors.As(err, &se) {
		return se.Code
	}
	return generalCode
}
