package cli

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/metrics"
	"github.com/mrz1836/sigil-keyring/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var hwMetricsAddr string

// hwCmd is the parent command for hardware wallet connections.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var hwCmd = &cobra.Command{
	Use:     "hw",
	Aliases: []string{"hardware"},
	Short:   "Connect to and monitor hardware wallets",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var (
	hwStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the connection pool",
		Args:  cobra.NoArgs,
		RunE:  runHWStatus,
	}
	hwConnectCmd = &cobra.Command{
		Use:   "connect <trezor|ledger>",
		Short: "Connect to a device, retrying per vendor policy",
		Args:  cobra.ExactArgs(1),
		RunE:  runHWConnect,
	}
	hwWatchCmd = &cobra.Command{
		Use:   "watch [vendor...]",
		Short: "Connect and print connection events until interrupted",
		Long: `Connect to the given vendors (all by default) and print every connection
event until interrupted. With --metrics-addr the Prometheus metrics are
served on that address while watching.`,
		RunE: runHWWatch,
	}
)

func statusTable(w io.Writer, statuses []hardware.EntryStatus) {
	tbl := output.NewTable("VENDOR", "STATUS", "RETRIES", "LAST ACTIVITY", "LAST ERROR")
	for _, s := range statuses {
		last := "-"
		if !s.LastActivity.IsZero() {
			last = s.LastActivity.Format(time.RFC3339)
		}
		tbl.AddRow(s.Vendor.String(), string(s.Status), strconv.Itoa(s.RetryCount), last, s.LastError)
	}
	_ = tbl.Render(w)
}

func runHWStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	hw := newHardwareManager(cc)
	defer hw.Destroy()

	statuses := hw.Status()
	return cc.Fmt.Emit(cmd.OutOrStdout(), statuses, func(tw io.Writer) {
		if len(statuses) == 0 {
			outln(tw, "No devices connected.")
			return
		}
		statusTable(tw, statuses)
	})
}

func runHWConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := GetCmdContext(cmd)

	vendor, err := hardware.ParseVendor(args[0])
	if err != nil {
		return err
	}

	hw := newHardwareManager(cc)
	defer hw.Destroy()

	ctx, cancel := context.WithTimeout(ctx, cc.Cfg.Hardware.ConnectTimeout)
	defer cancel()
	if err := hw.EnsureConnection(ctx, vendor); err != nil {
		return err
	}

	statuses := hw.Status()
	return cc.Fmt.Emit(cmd.OutOrStdout(), statuses, func(tw io.Writer) {
		out(tw, "Connected to %s.\n", vendor)
		statusTable(tw, statuses)
	})
}

// eventLine renders one event for the terminal.
func eventLine(ev hardware.Event) string {
	line := ev.Time.Format(time.TimeOnly) + " " + string(ev.Kind)
	if ev.Vendor != "" {
		line += " " + ev.Vendor.String()
	}
	if ev.Attempt > 0 {
		line += " attempt=" + strconv.Itoa(ev.Attempt)
	}
	if ev.Delay > 0 {
		line += " delay=" + ev.Delay.String()
	}
	if ev.Err != nil {
		line += " error=" + strconv.Quote(ev.Err.Error())
	}
	for _, s := range ev.Statuses {
		line += " " + s.Vendor.String() + "=" + string(s.Status)
	}
	return line
}

// eventView is the JSON line of one event; Err is not serializable as is.
type eventView struct {
	hardware.Event

	Error string `json:"error,omitempty"`
}

func runHWWatch(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	vendors := hardware.Vendors()
	if len(args) > 0 {
		vendors = vendors[:0]
		for _, a := range args {
			v, err := hardware.ParseVendor(a)
			if err != nil {
				return err
			}
			vendors = append(vendors, v)
		}
	}

	if hwMetricsAddr != "" && cc.Metrics == nil {
		cc.Metrics = metrics.New()
	}
	hw := newHardwareManager(cc)
	defer hw.Destroy()

	events, unsubscribe := hw.Subscribe(32)
	defer unsubscribe()

	g, ctx := errgroup.WithContext(cmd.Context())
	if hwMetricsAddr != "" {
		srv := &http.Server{
			Addr:              hwMetricsAddr,
			Handler:           cc.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          log.New(cc.Log.Writer(config.LogLevelError), "metrics: ", 0),
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		cc.Log.Debug("serving metrics on %s", hwMetricsAddr)
	}

	for _, v := range vendors {
		g.Go(func() error {
			// failures surface as events
			if err := hw.EnsureConnection(ctx, v); err != nil {
				cc.Log.Debug("connecting %s: %v", v, err)
			}
			return nil
		})
	}

	w := cmd.OutOrStdout()
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if cc.Fmt.IsJSON() {
					view := eventView{Event: ev}
					if ev.Err != nil {
						view.Error = ev.Err.Error()
					}
					if err := output.WriteJSON(w, view); err != nil {
						return err
					}
					continue
				}
				outln(w, eventLine(ev))
			}
		}
	})

	return g.Wait()
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	hwWatchCmd.Flags().StringVar(&hwMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")

	hwCmd.AddCommand(hwStatusCmd, hwConnectCmd, hwWatchCmd)
	rootCmd.AddCommand(hwCmd)
}
