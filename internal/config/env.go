package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// Environment variable names.
const (
	EnvHome             = "SIGIL_HOME"
	EnvLogLevel         = "SIGIL_LOG_LEVEL"
	EnvLogFormat        = "SIGIL_LOG_FORMAT"
	EnvFamily           = "SIGIL_FAMILY"
	EnvStorage          = "SIGIL_STORAGE"
	EnvStoragePath      = "SIGIL_STORAGE_PATH"
	EnvKDFIterations    = "SIGIL_KDF_ITERATIONS"
	EnvAutoLock         = "SIGIL_AUTO_LOCK"
	EnvHWConnectTimeout = "SIGIL_HW_CONNECT_TIMEOUT"
	EnvHWIdleTimeout    = "SIGIL_HW_IDLE_TIMEOUT"
	EnvOffline          = "SIGIL_OFFLINE"
	EnvMetrics          = "SIGIL_METRICS"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv(EnvFamily); v != "" {
		cfg.Keyring.Family = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvStorage); v != "" {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}

	if v := os.Getenv(EnvKDFIterations); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Keyring.KDFIterations = n
		}
	}

	// SIGIL_AUTO_LOCK sets the session auto-lock in minutes; 0 disables it
	if v := os.Getenv(EnvAutoLock); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Keyring.AutoLockMinutes = n
		}
	}

	if d, ok := parseDuration(os.Getenv(EnvHWConnectTimeout)); ok {
		cfg.Hardware.ConnectTimeout = d
	}

	if d, ok := parseDuration(os.Getenv(EnvHWIdleTimeout)); ok {
		cfg.Hardware.IdleTimeout = d
	}

	if v := os.Getenv(EnvOffline); v != "" {
		cfg.Resolver.Offline = parseBool(v)
	}

	if v := os.Getenv(EnvMetrics); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// parseDuration accepts Go durations ("45s") or bare seconds ("45").
func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// SanitizeURL cleans a URL string by removing whitespace and control characters.
// This is useful for cleaning user-provided RPC URLs that may contain copy-paste artifacts.
func SanitizeURL(url string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(url))
}

// ErrInsecureEndpoint is returned for plain-HTTP endpoints on non-loopback hosts.
var ErrInsecureEndpoint = errors.New("insecure endpoint: use https or wss for remote hosts")

// ValidateEndpoint checks that a network URL uses a supported scheme and, for
// remote hosts, an encrypted transport.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return sigilerr.Wrap(sigilerr.ErrInvalidInput, "parsing endpoint: %v", err)
	}
	if u.Host == "" {
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"endpoint": raw})
	}
	switch u.Scheme {
	case "https", "wss":
		return nil
	case "http", "ws":
		host := u.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
		return ErrInsecureEndpoint
	default:
		return sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"scheme": u.Scheme})
	}
}
