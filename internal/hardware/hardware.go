// Package hardware manages connections to hardware signing devices. Each
// vendor gets one pooled transport, created on demand under a vendor-specific
// retry policy, kept alive while in use, and evicted when idle.
package hardware

import (
	"context"
	"errors"
	"strings"
	"time"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Vendor identifies a hardware wallet protocol.
type Vendor string

// Supported vendors.
const (
	VendorLedger Vendor = "ledger"
	VendorTrezor Vendor = "trezor"
)

// Vendors returns every supported vendor.
func Vendors() []Vendor {
	return []Vendor{VendorLedger, VendorTrezor}
}

// ParseVendor parses a vendor name case-insensitively.
func ParseVendor(s string) (Vendor, error) {
	v := Vendor(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VendorLedger, VendorTrezor:
		return v, nil
	default:
		return "", sigilerr.WithDetails(sigilerr.ErrUnsupportedVendor, map[string]string{"vendor": s})
	}
}

// String returns the vendor name.
func (v Vendor) String() string {
	return string(v)
}

// Key returns the pool key of the vendor's default connection.
func (v Vendor) Key() string {
	return string(v) + "-default"
}

// Status is the lifecycle state of a pooled connection.
type Status string

// Connection states.
const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusError        Status = "ERROR"
)

// statusNames lists every status for gauges that need to reset old values.
func statusNames() []string {
	return []string{
		string(StatusDisconnected),
		string(StatusConnecting),
		string(StatusConnected),
		string(StatusError),
	}
}

var (
	// ErrConnectionExhausted is returned when every connection attempt failed.
	ErrConnectionExhausted = sigilerr.ErrConnectionExhausted

	// ErrUserCancelled is returned when the user dismissed the device prompt.
	ErrUserCancelled = sigilerr.ErrUserCancelled

	// ErrUnsupportedVendor is returned for a vendor without a registered connector.
	ErrUnsupportedVendor = sigilerr.ErrUnsupportedVendor

	// ErrAlreadyInitialized is returned by connectors whose vendor library
	// refuses a second initialization. The existing transport may still be live.
	ErrAlreadyInitialized = errors.New("device library already initialized")

	// ErrManagerDestroyed is returned by operations after Destroy.
	ErrManagerDestroyed = errors.New("hardware manager destroyed")

	// ErrNotConnected is returned when a device operation needs a live transport.
	ErrNotConnected = errors.New("hardware wallet not connected")

	// ErrSigningUnsupported is returned when a transport cannot sign digests.
	ErrSigningUnsupported = errors.New("transport does not support digest signing")
)

// Transport is a live channel to a device.
type Transport interface {
	// Probe issues a lightweight request to check the device still answers.
	Probe(ctx context.Context) error

	// Close releases the channel.
	Close() error
}

// DigestSigner is implemented by transports able to sign a 32-byte digest
// with the key at a derivation path.
type DigestSigner interface {
	SignDigest(ctx context.Context, path string, digest []byte) ([]byte, error)
}

// Connector creates transports for one vendor.
type Connector interface {
	// Vendor returns the protocol this connector speaks.
	Vendor() Vendor

	// Connect opens a transport. It must honor ctx cancellation.
	Connect(ctx context.Context) (Transport, error)

	// Dispose releases vendor library resources.
	Dispose() error
}

// EntryStatus is a snapshot of one pooled connection.
type EntryStatus struct {
	Key          string    `json:"key"`
	Vendor       Vendor    `json:"vendor"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	RetryCount   int       `json:"retryCount"`
	LastError    string    `json:"lastError,omitempty"`
}

// cancellationMarkers are substrings vendor libraries use to report that the
// user dismissed a prompt.
//
//nolint:gochecknoglobals // fixed vocabulary
var cancellationMarkers = []string{
	"cancelled",
	"canceled",
	"action cancelled by user",
	"denied by the user",
	"user rejected",
	"permissions not granted",
}

// isUserCancellation reports whether err means the user declined on device.
func isUserCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserCancelled) {
		return true
	}
	// a cancelled context is not a user decision
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range cancellationMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isAlreadyInitialized reports whether err means the vendor library is
// already set up from an earlier connection.
func isAlreadyInitialized(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAlreadyInitialized) ||
		strings.Contains(strings.ToLower(err.Error()), "already initialized")
}
