package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/keyring"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// initWords is the mnemonic length for a generated seed.
	initWords int
	// initRestore prompts for an existing recovery phrase instead of generating one.
	initRestore bool
)

// vaultCmd is the parent command for vault operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Create, unlock, and manage the encrypted seed vault",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the vault and the first account",
	Long: `Create the encrypted vault from a new or restored BIP39 recovery phrase and
derive the first account of the selected family.

When the vault already exists, init derives the first account for a family
that has none yet.`,
	Args: cobra.NoArgs,
	RunE: runVaultInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultUnlockCheckCmd = &cobra.Command{
	Use:   "unlock-check",
	Short: "Check that a password opens the vault",
	Args:  cobra.NoArgs,
	RunE:  runVaultUnlockCheck,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Re-encrypt the vault and every stored key under a new password",
	Args:  cobra.NoArgs,
	RunE:  runVaultChangePassword,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the vault and every account",
	Long: `Delete the encrypted vault and the account tables of every family.
This cannot be undone: keep the recovery phrase before running it.`,
	Args: cobra.NoArgs,
	RunE: runVaultForget,
}

// vaultInitResult is the JSON shape of vault init.
type vaultInitResult struct {
	Family   chain.Family   `json:"family"`
	Mnemonic string         `json:"mnemonic,omitempty"`
	Account  wallet.Account `json:"account"`
}

func runVaultInit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	exists, err := w.kr.VaultExists(ctx)
	if err != nil {
		return err
	}

	var mnemonic string
	if exists {
		if len(w.kr.Accounts(wallet.HDAccount)) > 0 {
			return sigilerr.WithSuggestion(sigilerr.ErrAccountExists,
				"the vault is already initialized; add accounts with: sigil-keyring account add")
		}
		if err := w.unlock(ctx); err != nil {
			return err
		}
	} else {
		if mnemonic, err = seedForInit(w.kr); err != nil {
			return err
		}
		pw, err := promptNewPasswordFn()
		if err != nil {
			return err
		}
		err = w.kr.SetWalletPassword(ctx, string(pw))
		sigilcrypto.Zero(pw)
		if err != nil {
			return err
		}
	}

	account, err := w.kr.CreateKeyringVault(ctx)
	if err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	cc.Log.Debug("vault initialized for %s", w.kr.Family())

	res := vaultInitResult{Family: w.kr.Family(), Account: account.Public()}
	if !initRestore {
		res.Mnemonic = mnemonic
	}
	return cc.Fmt.Emit(cmd.OutOrStdout(), res, func(tw io.Writer) {
		if res.Mnemonic != "" {
			outln(tw, "Recovery phrase (write it down, it is shown only once):")
			outln(tw)
			outln(tw, "  "+res.Mnemonic)
			outln(tw)
		}
		outAccount(tw, wallet.HDAccount, res.Account)
	})
}

// seedForInit generates or prompts for the recovery phrase and hands it to
// the keyring.
func seedForInit(kr *keyring.Manager) (string, error) {
	var phrase string
	if initRestore {
		p, err := promptSecretFn("Enter recovery phrase: ")
		if err != nil {
			return "", err
		}
		if v := kr.ValidateSeed(p); !v.IsValid {
			return "", sigilerr.WithSuggestion(sigilerr.ErrInvalidSeed, v.Message)
		}
		phrase = p
	} else {
		p, err := kr.GenerateMnemonic(initWords)
		if err != nil {
			return "", err
		}
		phrase = p
	}
	return kr.SetSeed(phrase)
}

func runVaultUnlockCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	var res keyring.UnlockResult
	err = withPassword("Enter wallet password: ", func(password string) error {
		res = w.kr.Unlock(ctx, password)
		return nil
	})
	if err != nil {
		return err
	}
	if !res.CanLogin {
		exists, existsErr := w.kr.VaultExists(ctx)
		if existsErr == nil && !exists {
			return errNoVault
		}
		return sigilerr.WithDetails(sigilerr.ErrInvalidPassword, map[string]string{"reason": res.Message})
	}

	return cc.Fmt.Emit(cmd.OutOrStdout(), res, func(tw io.Writer) {
		outln(tw, "Password accepted.")
	})
}

func runVaultChangePassword(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.requireVault(ctx); err != nil {
		return err
	}

	oldPW, err := promptPasswordFn("Enter current password: ")
	if err != nil {
		return err
	}
	defer sigilcrypto.Zero(oldPW)

	newPW, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer sigilcrypto.Zero(newPW)

	others, err := w.otherStates(ctx)
	if err != nil {
		return err
	}
	tables := make([]*wallet.VaultState, 0, len(others))
	for _, st := range others {
		tables = append(tables, st)
	}
	if err := w.kr.ChangePassword(ctx, string(oldPW), string(newPW), tables...); err != nil {
		return err
	}
	for f, st := range others {
		if err := wallet.SaveState(ctx, familyStorage{Storage: w.base, family: f}, st); err != nil {
			return fmt.Errorf("saving %s accounts: %w", f, err)
		}
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, "Password changed.")
}

// otherStates loads the saved account tables of the families this
// invocation is not bound to.
func (w *workspace) otherStates(ctx context.Context) (map[chain.Family]*wallet.VaultState, error) {
	states := make(map[chain.Family]*wallet.VaultState)
	for _, f := range otherFamilies(w.kr.Family()) {
		st, found, err := wallet.LoadState(ctx, familyStorage{Storage: w.base, family: f})
		if err != nil {
			return nil, err
		}
		if found {
			states[f] = st
		}
	}
	return states, nil
}

// otherFamilies lists every family except f.
func otherFamilies(f chain.Family) []chain.Family {
	var fams []chain.Family
	for _, o := range []chain.Family{chain.FamilyUTXO, chain.FamilyEVM} {
		if o != f {
			fams = append(fams, o)
		}
	}
	return fams
}

func runVaultForget(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.requireVault(ctx); err != nil {
		return err
	}
	err = withPassword("Enter wallet password to delete the vault: ", func(password string) error {
		return w.kr.ForgetMainWallet(ctx, password)
	})
	if err != nil {
		return err
	}

	for _, f := range otherFamilies(w.kr.Family()) {
		if err := w.base.Set(ctx, stateKey(f), nil); err != nil {
			return err
		}
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, "Vault deleted.")
}

// writeSuccess reports a completed command.
func writeSuccess(cmd *cobra.Command, cc *CommandContext, msg string) error {
	return cc.Fmt.Emit(cmd.OutOrStdout(), map[string]string{"status": "success", "message": msg}, func(tw io.Writer) {
		outln(tw, msg)
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	vaultInitCmd.Flags().IntVar(&initWords, "words", 12, "recovery phrase length: 12 or 24")
	vaultInitCmd.Flags().BoolVar(&initRestore, "restore", false, "restore from an existing recovery phrase")

	vaultCmd.AddCommand(vaultInitCmd, vaultUnlockCheckCmd, vaultChangePasswordCmd, vaultForgetCmd)
	rootCmd.AddCommand(vaultCmd)
}
