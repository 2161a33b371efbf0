// Package keyring is the account-custody core: it owns the account table of
// one address family, seals account secrets under the vault session key, and
// resolves the live signer for the active account and network.
package keyring

import (
	"github.com/mrz1836/sigil-keyring/internal/chain"
)

// Observer receives keyring telemetry. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveSigner(family chain.Family, outcome string)
	ObserveUnlock(ok bool)
}

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopObserver struct{}

func (nopObserver) ObserveSigner(chain.Family, string) {}
func (nopObserver) ObserveUnlock(bool)                 {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
