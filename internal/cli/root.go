// Package cli implements the sigil-keyring command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/output"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	familyName   string
	verbose      bool
	offline      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sigil-keyring",
	Short: "A multi-chain wallet keyring",
	Long: `sigil-keyring keeps an encrypted BIP39 vault and derives accounts for
UTXO (BIP84 segwit) and EVM networks from it. Imported keys and hardware
wallet accounts live beside the derived ones.

Example:
  sigil-keyring vault init
  sigil-keyring account add --label Savings
  sigil-keyring --family evm network use 11155111`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(); err != nil {
			return err
		}
		SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter))
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
	}
	return err
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return sigilerr.ExitCode(err)
}

// initGlobals loads configuration and sets up the logger and formatter.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	loaded, err := config.Load(config.Path(home))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loaded = config.Defaults()
	case err != nil:
		return err
	}
	cfg = loaded

	config.ApplyEnvironment(cfg)
	cfg.Home = home

	if familyName != "" {
		cfg.Keyring.Family = familyName
	}
	if offline {
		cfg.Resolver.Offline = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Keyring.AgeWorkFactor > 0 {
		sigilcrypto.SetScryptWorkFactor(cfg.Keyring.AgeWorkFactor)
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}

	detected := output.DetectFormat(os.Stdout, output.ParseFormat(outputFormat))
	formatter = output.NewFormatter(detected, os.Stdout)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "data directory (default: ~/.sigil-keyring)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().StringVar(&familyName, "family", "",
		fmt.Sprintf("keyring family: %s or %s (default from config)", chain.FamilyUTXO, chain.FamilyEVM))
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip endpoint checks when switching networks")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
