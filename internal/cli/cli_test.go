package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/config"
)

// CLI tests share the command tree and flag globals, so none run in parallel.

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery staple"
	newPassword  = "tr0ub4dor and more"

	evmAddr0   = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	rawKeyHex  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	rawKeyAddr = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	bip84Zprv  = "zprvAdG4iTXWBoARxkkzNpNh8r6Qag3irQB8PzEMkAFeTRXxHpbF9z4QgEvBRmfvqWvGp42t42nvgGpNgYSJA9iefm1yYNZKEm7z6qUWCroSQnE"
)

// newTestHome writes a fast, offline configuration into a temp home.
func newTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()

	c := config.Defaults()
	c.Keyring.KDFIterations = 1000
	c.Keyring.AgeWorkFactor = 10
	c.Logging.Level = "off"
	c.Logging.File = ""
	c.Resolver.Offline = true
	c.Hardware.TrezorBridgeURL = ""
	require.NoError(t, config.Save(c, config.Path(home)))
	return home
}

// mockPrompts answers password and secret prompts from inputs in order.
func mockPrompts(t *testing.T, inputs ...string) {
	t.Helper()
	queue := append([]string(nil), inputs...)
	prev := promptPasswordFn
	promptPasswordFn = func(string) ([]byte, error) {
		if len(queue) == 0 {
			return nil, errors.New("unexpected prompt")
		}
		s := queue[0]
		queue = queue[1:]
		return []byte(s), nil
	}
	t.Cleanup(func() { promptPasswordFn = prev })
}

// resetFlags restores every flag to its default between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with JSON output against home.
func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--home", home, "-o", "json"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func initRestored(t *testing.T, home string, family string) vaultInitResult {
	t.Helper()
	mockPrompts(t, testMnemonic, testPassword, testPassword)
	out, err := run(t, home, "--family", family, "vault", "init", "--restore")
	require.NoError(t, err)
	return decode[vaultInitResult](t, out)
}
