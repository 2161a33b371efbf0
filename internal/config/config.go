// Package config provides configuration management for the keyring.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Storage backends.
const (
	StorageFile     = "file"
	StorageBolt     = "bolt"
	StorageKeychain = "keychain"
	StorageMemory   = "memory"
)

// Config represents the application configuration.
type Config struct {
	Version  int             `yaml:"version"`
	Home     string          `yaml:"home"`
	Keyring  KeyringConfig   `yaml:"keyring"`
	Storage  StorageConfig   `yaml:"storage"`
	Hardware HardwareConfig  `yaml:"hardware"`
	Networks []chain.Network `yaml:"networks"`
	Resolver ResolverConfig  `yaml:"resolver"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// KeyringConfig defines vault and key derivation settings.
type KeyringConfig struct {
	Family          string `yaml:"family"`
	KDFIterations   int    `yaml:"kdf_iterations"`
	AgeWorkFactor   int    `yaml:"age_work_factor"`
	AutoLockMinutes int    `yaml:"auto_lock_minutes"`
}

// StorageConfig selects where the vault state is persisted.
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	KeychainService string `yaml:"keychain_service"`
}

// HardwareConfig tunes the hardware-wallet connection manager.
type HardwareConfig struct {
	ConnectTimeout  time.Duration       `yaml:"connect_timeout"`
	Ledger          chain.BackoffPolicy `yaml:"ledger"`
	TrezorAttempts  int                 `yaml:"trezor_attempts"`
	MonitorInterval time.Duration       `yaml:"monitor_interval"`
	IdleTimeout     time.Duration       `yaml:"idle_timeout"`
	// TrezorBridgeURL routes Trezor through Trezor Bridge when set. Empty
	// opens the device directly over USB.
	TrezorBridgeURL string `yaml:"trezor_bridge_url"`
}

// ResolverConfig tunes network validation before a signer switch.
type ResolverConfig struct {
	Offline             bool                `yaml:"offline"`
	Timeout             time.Duration       `yaml:"timeout"`
	RatePerSecond       float64             `yaml:"rate_per_second"`
	Burst               int                 `yaml:"burst"`
	Backoff             chain.BackoffPolicy `yaml:"backoff"`
	BreakerMinRequests  uint32              `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64             `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration       `yaml:"breaker_open_timeout"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the prometheus collectors.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, sigilerr.Wrap(sigilerr.ErrConfigInvalid, "parsing %s: %v", path, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate reports the first invalid setting as ErrConfigInvalid.
func (c *Config) Validate() error {
	if _, ok := chain.ParseFamily(c.Keyring.Family); !ok {
		return invalid("keyring.family", c.Keyring.Family)
	}
	if c.Keyring.KDFIterations < 0 {
		return invalid("keyring.kdf_iterations", fmt.Sprint(c.Keyring.KDFIterations))
	}
	switch c.Storage.Backend {
	case StorageFile, StorageBolt, StorageKeychain, StorageMemory:
	default:
		return invalid("storage.backend", c.Storage.Backend)
	}
	if c.Hardware.ConnectTimeout <= 0 {
		return invalid("hardware.connect_timeout", c.Hardware.ConnectTimeout.String())
	}
	if c.Hardware.TrezorAttempts < 1 {
		return invalid("hardware.trezor_attempts", fmt.Sprint(c.Hardware.TrezorAttempts))
	}
	for i, n := range c.Networks {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("networks[%d]: %w", i, err)
		}
	}
	return nil
}

func invalid(field, value string) error {
	return sigilerr.WithDetails(sigilerr.ErrConfigInvalid, map[string]string{
		"field": field,
		"value": value,
	})
}

// Family returns the configured keyring family, defaulting to UTXO.
func (c *Config) Family() chain.Family {
	if f, ok := chain.ParseFamily(c.Keyring.Family); ok {
		return f
	}
	return chain.FamilyUTXO
}

// AutoLock returns the session auto-lock duration; zero disables it.
func (c *Config) AutoLock() time.Duration {
	return time.Duration(c.Keyring.AutoLockMinutes) * time.Minute
}

// StoragePath resolves the storage path against Home: a directory for the
// file backend, a database file for bolt.
func (c *Config) StoragePath() (string, error) {
	p := c.Storage.Path
	if p == "" {
		name := "vault"
		if c.Storage.Backend == StorageBolt {
			name = "vault.db"
		}
		p = filepath.Join(c.Home, name)
	}
	return ExpandHome(p)
}

// GetHome returns the home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// DefaultHome returns the default home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigil-keyring"
	}
	return filepath.Join(home, ".sigil-keyring")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}
