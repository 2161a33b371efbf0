package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/keyring"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

func TestKeyValidate(t *testing.T) {
	home := newTestHome(t)

	t.Run("valid argument", func(t *testing.T) {
		out, err := run(t, home, "key", "validate", bip84Zprv)
		require.NoError(t, err)
		res := decode[keyValidation](t, out)
		assert.True(t, res.IsValid)
		assert.NotEmpty(t, res.Network)
	})

	t.Run("prompted", func(t *testing.T) {
		mockPrompts(t, "  "+bip84Zprv+"\n")
		out, err := run(t, home, "key", "validate")
		require.NoError(t, err)
		assert.True(t, decode[keyValidation](t, out).IsValid)
	})

	t.Run("wrong prefix", func(t *testing.T) {
		out, err := run(t, home, "key", "validate", "x"+bip84Zprv[1:])
		require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
		res := decode[keyValidation](t, out)
		assert.False(t, res.IsValid)
		assert.Contains(t, res.Message, "Only BIP84 keys")
	})

	t.Run("testnet network", func(t *testing.T) {
		_, err := run(t, home, "key", "validate", "--chain-id", "5700", bip84Zprv)
		require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
	})

	t.Run("unknown network", func(t *testing.T) {
		_, err := run(t, home, "key", "validate", "--chain-id", "4242", bip84Zprv)
		require.ErrorIs(t, err, sigilerr.ErrNotFound)
	})

	t.Run("evm family", func(t *testing.T) {
		_, err := run(t, home, "--family", "evm", "key", "validate", bip84Zprv)
		require.ErrorIs(t, err, sigilerr.ErrCrossFamilySwitch)
	})
}

func TestKeyCheckSeed(t *testing.T) {
	home := newTestHome(t)

	mockPrompts(t, testMnemonic)
	out, err := run(t, home, "key", "check-seed")
	require.NoError(t, err)
	assert.True(t, decode[keyring.SeedValidation](t, out).IsValid)

	mockPrompts(t, strings.Replace(testMnemonic, "about", "abuot", 1))
	out, err = run(t, home, "key", "check-seed")
	require.ErrorIs(t, err, sigilerr.ErrInvalidSeed)
	res := decode[keyring.SeedValidation](t, out)
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.Message)

	mockPrompts(t, "   ")
	_, err = run(t, home, "key", "check-seed")
	require.ErrorIs(t, err, sigilerr.ErrInvalidInput)
}
