package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/keyring"
	"github.com/mrz1836/sigil-keyring/internal/output"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	networkURL      string
	networkLabel    string
	networkCurrency string
	networkSlip44   uint32
	networkTestnet  bool
	networkHRP      string
)

// networkCmd is the parent command for network operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "List, switch, and register networks",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	networkListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the networks of the keyring's family",
		Args:  cobra.NoArgs,
		RunE:  runNetworkList,
	}
	networkUseCmd = &cobra.Command{
		Use:   "use <chain-id>",
		Short: "Switch the signer to another network",
		Long: `Switch the active account's signer to another network of the same family.
The endpoint is checked first; on failure the current network stays active.
UTXO accounts are re-derived for the new coin type, which needs the password.`,
		Args: cobra.ExactArgs(1),
		RunE: runNetworkUse,
	}
	networkAddCmd = &cobra.Command{
		Use:   "add <chain-id>",
		Short: "Register a custom network",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkAdd,
	}
	networkRemoveCmd = &cobra.Command{
		Use:   "remove <chain-id>",
		Short: "Remove a custom network",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkRemove,
	}
)

// networkView is the JSON shape of one listed network.
type networkView struct {
	chain.Network

	Active bool `json:"active"`
}

func parseChainID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, sigilerr.WithDetails(sigilerr.ErrInvalidInput, map[string]string{"chain_id": s})
	}
	return id, nil
}

// findNetwork picks a registered network by chain id. A non-empty url
// replaces the registered endpoint.
func findNetwork(kr *keyring.Manager, chainID uint64, url string) (chain.Network, error) {
	for _, n := range kr.Networks() {
		if n.ChainID != chainID {
			continue
		}
		if url != "" {
			n.URL = url
		}
		return n, nil
	}
	return chain.Network{}, sigilerr.WithSuggestion(
		sigilerr.WithDetails(sigilerr.ErrNotFound, map[string]string{"chain_id": strconv.FormatUint(chainID, 10)}),
		"list networks with: sigil-keyring network list")
}

func runNetworkList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)
	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	active := w.kr.ActiveNetwork()
	views := make([]networkView, 0)
	for _, n := range w.kr.Networks() {
		views = append(views, networkView{Network: n, Active: n.ChainID == active.ChainID})
	}

	return cc.Fmt.Emit(cmd.OutOrStdout(), views, func(tw io.Writer) {
		tbl := output.NewTable("", "CHAIN", "LABEL", "CURRENCY", "URL", "KIND")
		for _, v := range views {
			marker, kind := "", "custom"
			if v.Active {
				marker = "*"
			}
			if v.Default {
				kind = "built-in"
			}
			if v.IsTestnet {
				kind += ", testnet"
			}
			tbl.AddRow(marker, strconv.FormatUint(v.ChainID, 10), v.Label, v.Currency, v.URL, kind)
		}
		_ = tbl.Render(tw)
	})
}

func runNetworkUse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}
	url := ""
	if networkURL != "" {
		url = config.SanitizeURL(networkURL)
		if err := config.ValidateEndpoint(url); err != nil {
			return err
		}
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	n, err := findNetwork(w.kr, chainID, url)
	if err != nil {
		return err
	}

	var res keyring.SwitchResult
	err = w.retryUnlocked(ctx, func() error {
		var err error
		res, err = w.kr.SetSignerNetwork(ctx, n)
		return err
	})
	if err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}

	return cc.Fmt.Emit(cmd.OutOrStdout(), res, func(tw io.Writer) {
		out(tw, "Active network: %s (chain %d)\n", n, n.ChainID)
		if res.Rebuilt {
			outln(tw, "Signer rebuilt for the new network.")
		}
	})
}

func runNetworkAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}
	url := config.SanitizeURL(networkURL)
	if err := config.ValidateEndpoint(url); err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	n := chain.Network{
		ChainID:   chainID,
		URL:       url,
		Label:     networkLabel,
		Currency:  networkCurrency,
		Slip44:    networkSlip44,
		IsTestnet: networkTestnet,
		Bech32HRP: networkHRP,
	}
	if !cmd.Flags().Changed("slip44") && w.kr.Family() == chain.FamilyEVM {
		n.Slip44 = chain.CoinTypeEVM
	}
	if err := w.kr.AddNetwork(ctx, n); err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, "Network "+n.String()+" added.")
}

func runNetworkRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	chainID, err := parseChainID(args[0])
	if err != nil {
		return err
	}

	w, err := openWorkspace(ctx, cc)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.kr.RemoveNetwork(chainID); err != nil {
		return err
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	return writeSuccess(cmd, cc, "Network "+args[0]+" removed.")
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	networkUseCmd.Flags().StringVar(&networkURL, "url", "", "use this endpoint instead of the registered one")

	networkAddCmd.Flags().StringVar(&networkURL, "url", "", "endpoint URL (https, or http on localhost)")
	networkAddCmd.Flags().StringVar(&networkLabel, "label", "", "display name")
	networkAddCmd.Flags().StringVar(&networkCurrency, "currency", "", "currency symbol")
	networkAddCmd.Flags().Uint32Var(&networkSlip44, "slip44", chain.CoinTypeBitcoin, "SLIP44 coin type; 60 marks an EVM network")
	networkAddCmd.Flags().BoolVar(&networkTestnet, "testnet", false, "mark as a test network")
	networkAddCmd.Flags().StringVar(&networkHRP, "hrp", "", "bech32 human-readable part for UTXO addresses")
	_ = networkAddCmd.MarkFlagRequired("url")

	networkCmd.AddCommand(networkListCmd, networkUseCmd, networkAddCmd, networkRemoveCmd)
	rootCmd.AddCommand(networkCmd)
}
