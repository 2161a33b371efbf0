package config

import (
	"time"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
)

// Hardware connection defaults.
const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultTrezorAttempts  = 2
	DefaultMonitorInterval = 5 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
)

// DefaultKeychainService is the OS keychain service name for the vault record.
const DefaultKeychainService = "sigil-keyring"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.sigil-keyring",
		Keyring: KeyringConfig{
			Family:          chain.FamilyUTXO.String(),
			KDFIterations:   sigilcrypto.DefaultKDFIterations,
			AgeWorkFactor:   sigilcrypto.DefaultScryptWorkFactor,
			AutoLockMinutes: 15,
		},
		Storage: StorageConfig{
			Backend:         StorageFile,
			KeychainService: DefaultKeychainService,
		},
		Hardware: HardwareConfig{
			ConnectTimeout:  DefaultConnectTimeout,
			Ledger:          chain.DefaultBackoffPolicy(),
			TrezorAttempts:  DefaultTrezorAttempts,
			MonitorInterval: DefaultMonitorInterval,
			IdleTimeout:     DefaultIdleTimeout,
			TrezorBridgeURL: "http://127.0.0.1:21325",
		},
		Networks: chain.DefaultNetworks(),
		Resolver: ResolverConfig{
			Timeout:             10 * time.Second,
			RatePerSecond:       5,
			Burst:               10,
			Backoff:             chain.DefaultBackoffPolicy(),
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerOpenTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "error",
			File:   "~/.sigil-keyring/sigil-keyring.log",
			Format: LogFormatJSON,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
