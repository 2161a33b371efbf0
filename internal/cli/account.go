package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/output"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	accountLabel  string
	accountType   string
	accountXpub   string
	accountQR     bool
	exportXprv    bool
	exportSeed    bool
	accountListTy string
	importNetwork string
)

// accountCmd is the parent command for account operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage derived, imported, and hardware accounts",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	accountAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Derive the next HD account",
		Args:  cobra.NoArgs,
		RunE:  runAccountAdd,
	}
	accountListCmd = &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccountList,
	}
	accountShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the active account",
		Args:  cobra.NoArgs,
		RunE:  runAccountShow,
	}
	accountUseCmd = &cobra.Command{
		Use:   "use <id>",
		Short: "Make an account active",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountUse,
	}
	accountImportCmd = &cobra.Command{
		Use:   "import",
		Short: "Import a private key",
		Long: `Import a raw 64-character hex private key, or on UTXO networks a BIP84
zprv/vprv extended key. The key is read from the terminal without echo.
With --network the key is checked against that registered network instead
of the active one.`,
		Args: cobra.NoArgs,
		RunE: runAccountImport,
	}
	accountExportCmd = &cobra.Command{
		Use:   "export [id]",
		Short: "Export an account key, the HD extended key, or the recovery phrase",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAccountExport,
	}
	accountLabelCmd = &cobra.Command{
		Use:   "label <id> <label>",
		Short: "Rename an account",
		Args:  cobra.ExactArgs(2),
		RunE:  runAccountLabel,
	}
	accountRemoveCmd = &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an imported or hardware account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountRemove,
	}
	accountAddHardwareCmd = &cobra.Command{
		Use:   "add-hw <vendor> <address>",
		Short: "Record a hardware wallet account",
		Long: `Record an account whose key lives on a Ledger or Trezor device. The device
must be reachable; the active account is not changed.`,
		Args: cobra.ExactArgs(2),
		RunE: runAccountAddHardware,
	}
)

// accountView is the JSON shape of one listed account.
type accountView struct {
	Type    wallet.AccountType `json:"type"`
	Active  bool               `json:"active"`
	Account wallet.Account     `json:"account"`
}

func outAccount(w io.Writer, t wallet.AccountType, a wallet.Account) {
	out(w, "%s %d: %s\n", t, a.ID, a.Label)
	out(w, "  Address: %s\n", a.Address)
	if a.PublicExtendedKey != "" {
		out(w, "  Public key: %s\n", a.PublicExtendedKey)
	}
	if a.HardwareVendor != "" {
		out(w, "  Device: %s\n", a.HardwareVendor)
	}
}

func parseAccountID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"id": s})
	}
	return uint32(id), nil
}

func runAccountAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.unlock(ctx); err != nil {
		return err
	}
	a, err := w.kr.AddNewAccount(ctx, accountLabel)
	if err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return cc.Fmt.Emit(cmd.OutOrStdout(), accountView{Type: wallet.HDAccount, Active: true, Account: a.Public()}, func(tw io.Writer) {
		outAccount(tw, wallet.HDAccount, a)
	})
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	types := wallet.AccountTypes()
	if accountListTy != "" {
		t, err := wallet.ParseAccountType(accountListTy)
		if err != nil {
			return err
		}
		types = []wallet.AccountType{t}
	}

	active, activeType, activeErr := w.kr.ActiveAccount()
	views := make([]accountView, 0)
	for _, t := range types {
		for _, a := range w.kr.Accounts(t) {
			views = append(views, accountView{
				Type:    t,
				Active:  activeErr == nil && t == activeType && a.ID == active.ID,
				Account: a.Public(),
			})
		}
	}

	return cc.Fmt.Emit(cmd.OutOrStdout(), views, func(tw io.Writer) {
		if len(views) == 0 {
			outln(tw, "No accounts yet.")
			outln(tw, "Create the first one with: sigil-keyring vault init")
			return
		}
		tbl := output.NewTable("", "TYPE", "ID", "LABEL", "ADDRESS")
		for _, v := range views {
			marker := ""
			if v.Active {
				marker = "*"
			}
			tbl.AddRow(marker, string(v.Type), strconv.FormatUint(uint64(v.Account.ID), 10), v.Account.Label, v.Account.Address)
		}
		_ = tbl.Render(tw)
	})
}

func runAccountShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	a, t, err := w.kr.ActiveAccount()
	if err != nil {
		return err
	}
	view := accountView{Type: t, Active: true, Account: a.Public()}
	return cc.Fmt.Emit(cmd.OutOrStdout(), view, func(tw io.Writer) {
		outAccount(tw, t, a)
		outln(tw, "  Network:", w.kr.ActiveNetwork())
		if accountQR {
			outln(tw)
			output.RenderQR(tw, a.Address)
		}
	})
}

func runAccountUse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	t, err := wallet.ParseAccountType(accountType)
	if err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.kr.SetActiveAccount(ctx, id, t); err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	a, _, err := w.kr.ActiveAccount()
	if err != nil {
		return err
	}
	return cc.Fmt.Emit(cmd.OutOrStdout(), accountView{Type: t, Active: true, Account: a.Public()}, func(tw io.Writer) {
		out(tw, "Active account: %s %d (%s)\n", t, a.ID, a.Address)
	})
}

func runAccountImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.unlock(ctx); err != nil {
		return err
	}
	var target *chain.Network
	if importNetwork != "" {
		id, err := parseChainID(importNetwork)
		if err != nil {
			return err
		}
		n, err := findNetwork(w.kr, id, "")
		if err != nil {
			return err
		}
		target = &n
	}
	material, err := promptSecretFn("Enter private key: ")
	if err != nil {
		return err
	}
	a, err := w.kr.ImportAccount(ctx, material, accountLabel, target)
	if err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return cc.Fmt.Emit(cmd.OutOrStdout(), accountView{Type: wallet.Imported, Active: true, Account: a.Public()}, func(tw io.Writer) {
		outAccount(tw, wallet.Imported, a)
	})
}

// exportResult is the JSON shape of account export.
type exportResult struct {
	Kind   string `json:"kind"`
	Secret string `json:"secret"`
}

func runAccountExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	if exportXprv && exportSeed {
		return sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "use only one of --xprv and --seed")
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.requireVault(ctx); err != nil {
		return err
	}

	var res exportResult
	err = withPassword("Enter wallet password: ", func(password string) error {
		var err error
		switch {
		case exportSeed:
			res.Kind = "mnemonic"
			res.Secret, err = w.kr.Seed(ctx, password)
		case exportXprv:
			res.Kind = "encrypted-xprv"
			res.Secret, err = w.kr.EncryptedXprv(ctx, password)
		default:
			if len(args) == 0 {
				return sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "pass an account id, or --xprv or --seed")
			}
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			t, err := wallet.ParseAccountType(accountType)
			if err != nil {
				return err
			}
			res.Kind = "private-key"
			res.Secret, err = w.kr.PrivateKeyByAccountID(ctx, id, t, password)
			return err
		}
		return err
	})
	if err != nil {
		return err
	}

	return cc.Fmt.Emit(cmd.OutOrStdout(), res, func(tw io.Writer) {
		outln(tw, res.Secret)
	})
}

func runAccountLabel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	t, err := wallet.ParseAccountType(accountType)
	if err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.kr.SetAccountLabel(t, id, args[1]); err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, fmt.Sprintf("%s %d renamed to %q.", t, id, args[1]))
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	t, err := wallet.ParseAccountType(accountType)
	if err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.kr.RemoveAccount(t, id); err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, fmt.Sprintf("%s %d removed.", t, id))
}

func runAccountAddHardware(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	vendor, err := hardware.ParseVendor(args[0])
	if err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	a, err := w.kr.AddHardwareAccount(ctx, vendor, args[1], accountXpub, accountLabel)
	if err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	t := wallet.Ledger
	if vendor == hardware.VendorTrezor {
		t = wallet.Trezor
	}
	return cc.Fmt.Emit(cmd.OutOrStdout(), accountView{Type: t, Account: a}, func(tw io.Writer) {
		outAccount(tw, t, a)
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{accountAddCmd, accountImportCmd, accountAddHardwareCmd} {
		c.Flags().StringVar(&accountLabel, "label", "", "account label (default: numbered)")
	}
	for _, c := range []*cobra.Command{accountUseCmd, accountExportCmd, accountLabelCmd, accountRemoveCmd} {
		c.Flags().StringVarP(&accountType, "type", "t", "hd", "account type: hd, imported, trezor, ledger")
	}
	accountListCmd.Flags().StringVarP(&accountListTy, "type", "t", "", "only list this account type")
	accountShowCmd.Flags().BoolVar(&accountQR, "qr", false, "draw the address as a QR code")
	accountExportCmd.Flags().BoolVar(&exportXprv, "xprv", false, "export the first HD account's extended private key")
	accountExportCmd.Flags().BoolVar(&exportSeed, "seed", false, "export the recovery phrase")
	accountAddHardwareCmd.Flags().StringVar(&accountXpub, "xpub", "", "account extended public key")
	accountImportCmd.Flags().StringVar(&importNetwork, "network", "", "chain id of the network the key belongs to")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountShowCmd, accountUseCmd, accountImportCmd,
		accountExportCmd, accountLabelCmd, accountRemoveCmd, accountAddHardwareCmd)
	rootCmd.AddCommand(accountCmd)
}
