package keyring

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

func TestImportAccount_ExtendedKeyPrefixes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rejected := []string{
		"xprv9s21ZrQH143K3GJpoapnV8SFfukcVBSfeCficPSGfubmSFDxo1kuHnLisriDvSnRRuL2Qrg5ggqHKNVpxR86QEC8w35uxmGoggxtQTPvfUu",
		"yprvAHwhK6RbpuS3dgCYHM5jc2ZvEKd7Bi61u9FVhYMpgMSuZS613T1xxQeKTffhrHY79hZ5PsskBjcc6C2V7DrnsMsNaGDaWev3GLRQRgV7hxF",
		"tprv8ZgxMBicQKsPd7Uf69XL1XwhmjHopUGep8GuEiJDZmbQz6o58LninorQAfcKZWARbtRtfnLcJ5MQ2AtHcQJCCRUcMRvmDUjyEmNUWwx8UbK",
		"uprv8tXDerPXZ1QsVNjUJWTurs9kA1KGfKUAts74GCkcXtU8GwnH33GDRbNJpEqTvipfCyycARtQJhmdfWf8oKt41X9LL1zeD2pLsWmxEk3VAwd",
	}
	for _, key := range rejected {
		prefix := key[:4]
		t.Run(prefix, func(t *testing.T) {
			t.Parallel()
			k := newUnlockedUTXO(t)
			_, err := k.ImportAccount(ctx, key, "", nil)
			require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
			assert.Contains(t, err.Error(), "'"+prefix+"'")
			assert.Contains(t, err.Error(), "Only BIP84 keys (zprv/vprv) are supported")
			assert.Empty(t, k.Accounts(wallet.Imported))
		})
	}
}

func TestImportAccount_Zprv(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)

	a, err := k.ImportAccount(ctx, "  "+bip84Zprv+"\n", "", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), a.ID)
	assert.True(t, a.IsImported)
	assert.Equal(t, "Imported 1", a.Label)
	assert.Equal(t, bip84Addr, a.Address)
	assert.Equal(t, bip84Zpub, a.PublicExtendedKey)

	active, typ, err := k.ActiveAccount()
	require.NoError(t, err)
	assert.Equal(t, wallet.Imported, typ)
	assert.Equal(t, a.ID, active.ID)

	s, err := k.Signer(ctx)
	require.NoError(t, err)
	assert.Equal(t, bip84Addr, s.Address())

	exported, err := k.PrivateKeyByAccountID(ctx, 0, wallet.Imported, testPassword)
	require.NoError(t, err)
	assert.Equal(t, bip84Zprv, exported)

	_, err = k.ImportAccount(ctx, bip84Zprv, "again", nil)
	require.ErrorIs(t, err, sigilerr.ErrAccountExists)
}

func TestImportAccount_ZprvChecksum(t *testing.T) {
	t.Parallel()
	k := newUnlockedUTXO(t)

	corrupted := bip84Zprv[:len(bip84Zprv)-1] + "F"
	_, err := k.ImportAccount(context.Background(), corrupted, "", nil)
	require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
	assert.Contains(t, strings.ToLower(err.Error()), "checksum")

	v := k.ValidateZprv(corrupted, nil)
	assert.False(t, v.IsValid)
	assert.Contains(t, strings.ToLower(v.Message), "checksum")
}

func TestImportAccount_ZprvOnTestnet(t *testing.T) {
	t.Parallel()
	k := newUnlockedUTXO(t)
	_, err := k.SetSignerNetwork(context.Background(), utxoNetwork(t, bitcoinTestnet()))
	require.NoError(t, err)

	_, err = k.ImportAccount(context.Background(), bip84Zprv, "", nil)
	require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
	assert.Contains(t, err.Error(), "Mainnet key")
}

func TestImportAccount_ExplicitNetwork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)

	// the key is checked against the given network, not the active one
	testnet := bitcoinTestnet()
	_, err := k.ImportAccount(ctx, bip84Zprv, "", &testnet)
	require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
	assert.Contains(t, err.Error(), "Mainnet key")

	// a key for another address space would not be usable on the active network
	_, err = k.ImportAccount(ctx, rawKeyHex, "", &testnet)
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)

	evmNet := chain.DefaultNetwork(chain.FamilyEVM)
	_, err = k.ImportAccount(ctx, rawKeyHex, "", &evmNet)
	require.ErrorIs(t, err, sigilerr.ErrCrossFamilySwitch)
	assert.Empty(t, k.Accounts(wallet.Imported))

	sibling := bitcoinMainnet()
	sibling.ChainID = 99
	sibling.URL = "https://btc-mirror.example.org"
	a, err := k.ImportAccount(ctx, bip84Zprv, "", &sibling)
	require.NoError(t, err)
	assert.Equal(t, bip84Addr, a.Address)
	assert.Len(t, k.Accounts(wallet.Imported), 1)
}

func TestValidateZprv(t *testing.T) {
	t.Parallel()
	k := newUnlockedUTXO(t)

	v := k.ValidateZprv(bip84Zprv, nil)
	assert.True(t, v.IsValid)
	require.NotNil(t, v.Network)
	assert.Equal(t, bitcoinMainnet(), *v.Network)

	testnet := bitcoinTestnet()
	v = k.ValidateZprv(bip84Zprv, &testnet)
	assert.False(t, v.IsValid)

	e := newUnlockedEVM(t)
	v = e.ValidateZprv(bip84Zprv, nil)
	assert.True(t, v.IsValid, "EVM keyrings validate without a network")
	assert.Nil(t, v.Network)
}

func TestImportAccount_RawHex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("evm", func(t *testing.T) {
		t.Parallel()
		k := newUnlockedEVM(t)
		a, err := k.ImportAccount(ctx, "0x"+rawKeyHex, "Cold", nil)
		require.NoError(t, err)
		assert.Equal(t, rawKeyAddr, a.Address)
		assert.Equal(t, "Cold", a.Label)

		s, err := k.Signer(ctx)
		require.NoError(t, err)
		assert.Equal(t, rawKeyAddr, s.Address())

		_, err = k.ImportAccount(ctx, strings.ToUpper(rawKeyHex), "", nil)
		require.ErrorIs(t, err, sigilerr.ErrAccountExists)
	})

	t.Run("utxo", func(t *testing.T) {
		t.Parallel()
		k := newUnlockedUTXO(t)
		a, err := k.ImportAccount(ctx, rawKeyHex, "", nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(a.Address, "bc1q"), a.Address)
		assert.Len(t, a.PublicExtendedKey, 66)

		exported, err := k.PrivateKeyByAccountID(ctx, a.ID, wallet.Imported, testPassword)
		require.NoError(t, err)
		assert.Equal(t, rawKeyHex, exported)

		// single-key accounts follow the network like HD ones
		_, err = k.SetSignerNetwork(ctx, utxoNetwork(t, bitcoinTestnet()))
		require.NoError(t, err)
		moved := k.Accounts(wallet.Imported)
		require.Len(t, moved, 1)
		assert.True(t, strings.HasPrefix(moved[0].Address, "tb1q"), moved[0].Address)
	})
}

func TestImportAccount_Malformed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inputs := []string{"", "nothex", "0x1234", strings.Repeat("zz", 32), strings.Repeat("ab", 33)}
	for _, family := range []chain.Family{chain.FamilyUTXO, chain.FamilyEVM} {
		t.Run(string(family), func(t *testing.T) {
			t.Parallel()
			var m *Manager
			if family == chain.FamilyUTXO {
				m = newUnlockedUTXO(t).Manager
			} else {
				m = newUnlockedEVM(t).Manager
			}
			for _, in := range inputs {
				_, err := m.ImportAccount(ctx, in, "", nil)
				require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat, "input %q", in)
			}
		})
	}

	t.Run("extended key on evm", func(t *testing.T) {
		t.Parallel()
		k := newUnlockedEVM(t)
		_, err := k.ImportAccount(ctx, bip84Zprv, "", nil)
		require.ErrorIs(t, err, sigilerr.ErrInvalidPrivateKeyFormat)
	})

	t.Run("locked", func(t *testing.T) {
		t.Parallel()
		k := newUnlockedEVM(t)
		k.LockWallet()
		_, err := k.ImportAccount(ctx, rawKeyHex, "", nil)
		require.ErrorIs(t, err, sigilerr.ErrLockedWallet)
	})
}

func TestRemoveAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedEVM(t)
	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	imported, err := k.ImportAccount(ctx, rawKeyHex, "", nil)
	require.NoError(t, err)

	require.ErrorIs(t, k.RemoveAccount(wallet.HDAccount, 0), sigilerr.ErrPermission)
	require.ErrorIs(t, k.RemoveAccount(wallet.Imported, imported.ID), sigilerr.ErrPermission, "active")
	require.ErrorIs(t, k.RemoveAccount(wallet.Imported, 7), sigilerr.ErrAccountNotFound)

	require.NoError(t, k.SetActiveAccount(ctx, 0, wallet.HDAccount))
	require.NoError(t, k.RemoveAccount(wallet.Imported, imported.ID))
	assert.Empty(t, k.Accounts(wallet.Imported))

	// ids are not reassigned after removal
	again, err := k.ImportAccount(ctx, rawKeyHex, "", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), again.ID)
}

func TestSetAccountLabel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedEVM(t)
	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)

	require.NoError(t, k.SetAccountLabel(wallet.HDAccount, 0, "  Spending "))
	a, _, err := k.ActiveAccount()
	require.NoError(t, err)
	assert.Equal(t, "Spending", a.Label)

	require.ErrorIs(t, k.SetAccountLabel(wallet.HDAccount, 0, " "), sigilerr.ErrInvalidInput)
	require.ErrorIs(t, k.SetAccountLabel(wallet.Ledger, 0, "x"), sigilerr.ErrAccountNotFound)
}

// deviceTransport signs by hashing the path and digest.
type deviceTransport struct {
	closed atomic.Bool
}

func (d *deviceTransport) Probe(context.Context) error { return nil }

func (d *deviceTransport) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *deviceTransport) SignDigest(_ context.Context, path string, digest []byte) ([]byte, error) {
	sum := sha256.Sum256(append([]byte(path), digest...))
	return sum[:], nil
}

type deviceConnector struct {
	vendor hardware.Vendor
	calls  atomic.Int32
}

func (c *deviceConnector) Vendor() hardware.Vendor { return c.vendor }

func (c *deviceConnector) Connect(context.Context) (hardware.Transport, error) {
	c.calls.Add(1)
	return &deviceTransport{}, nil
}

func (c *deviceConnector) Dispose() error { return nil }

func newHardwareManager(t *testing.T, connectors ...hardware.Connector) *hardware.Manager {
	t.Helper()
	hw := hardware.NewManager(hardware.Options{
		ConnectTimeout:  time.Second,
		MonitorInterval: time.Hour,
		IdleTimeout:     time.Hour,
	}, connectors...)
	t.Cleanup(hw.Destroy)
	return hw
}

func TestAddHardwareAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := &deviceConnector{vendor: hardware.VendorLedger}

	opts := evmOptions(wallet.NewMemoryStorage())
	opts.Hardware = newHardwareManager(t, ledger)
	k, err := NewEVMKeyring(opts)
	require.NoError(t, err)
	initVault(t, k.Manager)
	_, err = k.CreateKeyringVault(ctx)
	require.NoError(t, err)

	_, err = k.AddHardwareAccount(ctx, hardware.VendorLedger, "not-an-address", "", "")
	require.ErrorIs(t, err, sigilerr.ErrInvalidInput)
	_, err = k.AddHardwareAccount(ctx, hardware.VendorTrezor, rawKeyAddr, "", "")
	require.ErrorIs(t, err, sigilerr.ErrUnsupportedVendor)

	a, err := k.AddHardwareAccount(ctx, hardware.VendorLedger, rawKeyAddr, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Ledger 1", a.Label)
	assert.Equal(t, "ledger", a.HardwareVendor)
	assert.True(t, opts.Hardware.IsConnected(hardware.VendorLedger))

	// adding does not change the selection
	active, typ, err := k.ActiveAccount()
	require.NoError(t, err)
	assert.Equal(t, wallet.HDAccount, typ)
	assert.Equal(t, uint32(0), active.ID)

	_, err = k.AddHardwareAccount(ctx, hardware.VendorLedger, rawKeyAddr, "", "")
	require.ErrorIs(t, err, sigilerr.ErrAccountExists)

	_, err = k.PrivateKeyByAccountID(ctx, a.ID, wallet.Ledger, testPassword)
	require.ErrorIs(t, err, sigilerr.ErrPermission)

	// hardware signers work while locked
	require.NoError(t, k.SetActiveAccount(ctx, a.ID, wallet.Ledger))
	k.LockWallet()
	s, err := k.Signer(ctx)
	require.NoError(t, err)
	hs, ok := s.(*hardware.Signer)
	require.True(t, ok)
	assert.Equal(t, rawKeyAddr, hs.Address())
	assert.Equal(t, hardware.VendorLedger, hs.Vendor())

	digest := sha256.Sum256([]byte("tx"))
	sig, err := hs.SignDigest(digest[:])
	require.NoError(t, err)
	want := sha256.Sum256(append([]byte("m/44'/60'/0'/0/0"), digest[:]...))
	assert.Equal(t, want[:], sig)
}

func TestAddHardwareAccount_NoManager(t *testing.T) {
	t.Parallel()
	k := newUnlockedEVM(t)
	_, err := k.AddHardwareAccount(context.Background(), hardware.VendorLedger, rawKeyAddr, "", "")
	require.ErrorIs(t, err, sigilerr.ErrUnsupportedVendor)
}
