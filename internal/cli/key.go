package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/keyring"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var keyChainID uint64

// keyCmd is the parent command for offline key checks.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Check keys and recovery phrases without storing them",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	keyValidateCmd = &cobra.Command{
		Use:   "validate [zprv]",
		Short: "Check a BIP84 extended private key",
		Long: `Check that a zprv/vprv key is well formed and matches the network.
Without an argument the key is read from the terminal so it stays out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runKeyValidate,
	}
	keyCheckSeedCmd = &cobra.Command{
		Use:   "check-seed",
		Short: "Check a recovery phrase, suggesting fixes for misspelled words",
		Args:  cobra.NoArgs,
		RunE:  runKeyCheckSeed,
	}
)

// keyValidation is the JSON shape of key validate.
type keyValidation struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message,omitempty"`
	Network string `json:"network,omitempty"`
}

func runKeyValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	if cc.Cfg.Family() != chain.FamilyUTXO {
		return sigilerr.WithSuggestion(sigilerr.ErrCrossFamilySwitch, "extended keys are checked with --family utxo")
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	var key string
	if len(args) == 1 {
		key = args[0]
	} else if key, err = promptSecretFn("Extended private key: "); err != nil {
		return err
	}

	var target *chain.Network
	if cmd.Flags().Changed("chain-id") {
		n, err := findNetwork(w.kr, keyChainID, "")
		if err != nil {
			return err
		}
		target = &n
	}

	res := w.kr.ValidateZprv(key, target)
	view := keyValidation{IsValid: res.IsValid, Message: res.Message}
	if res.Network != nil {
		view.Network = res.Network.String()
	}

	if err := cc.Fmt.Emit(cmd.OutOrStdout(), view, func(tw io.Writer) {
		if view.IsValid {
			out(tw, "Key is valid for %s.\n", view.Network)
			return
		}
		outln(tw, view.Message)
	}); err != nil {
		return err
	}
	if !res.IsValid {
		return sigilerr.WithDetails(sigilerr.ErrInvalidPrivateKeyFormat, map[string]string{"reason": res.Message})
	}
	return nil
}

func runKeyCheckSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	phrase, err := promptSecretFn("Recovery phrase: ")
	if err != nil {
		return err
	}
	res := w.kr.ValidateSeed(phrase)

	if err := cc.Fmt.Emit(cmd.OutOrStdout(), res, func(tw io.Writer) {
		if res.IsValid {
			outln(tw, "Recovery phrase is valid.")
			return
		}
		outln(tw, res.Message)
	}); err != nil {
		return err
	}
	if !res.IsValid {
		return seedError(res)
	}
	return nil
}

// seedError converts a failed seed check into ErrInvalidSeed.
func seedError(res keyring.SeedValidation) error {
	return sigilerr.WithDetails(sigilerr.ErrInvalidSeed, map[string]string{"reason": res.Message})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keyValidateCmd.Flags().Uint64Var(&keyChainID, "chain-id", 0, "check against this network instead of the active one")

	keyCmd.AddCommand(keyValidateCmd, keyCheckSeedCmd)
	rootCmd.AddCommand(keyCmd)
}
