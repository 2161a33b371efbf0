package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/metrics"
	"github.com/mrz1836/sigil-keyring/internal/output"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics
}

// NewCommandContext creates a context with the given dependencies. Metrics
// are collected only when enabled in the configuration.
func NewCommandContext(cfg *config.Config, logger *config.Logger, formatter *output.Formatter) *CommandContext {
	c := &CommandContext{Cfg: cfg, Log: logger, Fmt: formatter}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New()
	}
	return c
}

type cmdContextKey struct{}

// SetCmdContext attaches c to the command's context.
func SetCmdContext(cmd *cobra.Command, c *CommandContext) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cmdContextKey{}, c))
}

// GetCmdContext returns the context attached by SetCmdContext, falling back
// to the globals.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if c, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok {
			return c
		}
	}
	return NewCommandContext(cfg, logger, formatter)
}
