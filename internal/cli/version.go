package cli

import (
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

//nolint:gochecknoglobals // set once from main
var buildInfo = BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"}

// SetBuildInfo records the release metadata. Empty fields keep their defaults.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildInfo.Version = version
	}
	if commit != "" {
		buildInfo.Commit = commit
	}
	if date != "" {
		buildInfo.Date = date
	}
	rootCmd.Version = formatVersion(buildInfo)
}

func formatVersion(b BuildInfo) string {
	return b.Version + " (commit: " + b.Commit + ", built: " + b.Date + ")"
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := GetCmdContext(cmd)
		view := struct {
			BuildInfo

			Go string `json:"go"`
		}{BuildInfo: buildInfo, Go: runtime.Version()}
		return cc.Fmt.Emit(cmd.OutOrStdout(), view, func(tw io.Writer) {
			out(tw, "sigil-keyring %s %s/%s %s\n", formatVersion(buildInfo), runtime.GOOS, runtime.GOARCH, runtime.Version())
		})
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
