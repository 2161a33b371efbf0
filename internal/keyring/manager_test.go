package keyring

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/network"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery staple"

	// BIP84 account 0 of testMnemonic on bitcoin mainnet.
	bip84Zprv = "zprvAdG4iTXWBoARxkkzNpNh8r6Qag3irQB8PzEMkAFeTRXxHpbF9z4QgEvBRmfvqWvGp42t42nvgGpNgYSJA9iefm1yYNZKEm7z6qUWCroSQnE"
	bip84Zpub = "zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvPhXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs"
	bip84Addr = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"

	// m/44'/60'/0'/0/0 of testMnemonic.
	evmAddr0 = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

	rawKeyHex  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	rawKeyAddr = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestMain(m *testing.M) {
	sigilcrypto.SetScryptWorkFactor(10) // Fast for tests
	os.Exit(m.Run())
}

//nolint:gochecknoglobals // Test fixture
var testKDF = sigilcrypto.KDFParams{Iterations: 1000}

func bitcoinMainnet() chain.Network {
	return chain.Network{ChainID: 0, URL: "https://btc.example.org", Label: "Bitcoin", Currency: "btc", Slip44: chain.CoinTypeBitcoin}
}

func bitcoinTestnet() chain.Network {
	return chain.Network{ChainID: 18332, URL: "https://tbtc.example.org", Label: "Bitcoin Testnet", Currency: "tbtc", Slip44: chain.CoinTypeTestnet, IsTestnet: true}
}

func ethereumMainnet() chain.Network {
	return chain.Network{ChainID: 1, URL: "https://eth.example.org", Label: "Ethereum", Currency: "eth", Slip44: chain.CoinTypeEVM}
}

// recordingResolver validates like network.Static and can be told to fail
// for one URL.
type recordingResolver struct {
	mu      sync.Mutex
	calls   []chain.Network
	failURL string
}

func (r *recordingResolver) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	fail := r.failURL != "" && n.URL == r.failURL
	r.mu.Unlock()
	if fail {
		return nil, errors.New("endpoint reports a different chain")
	}
	return network.Static{}.ResolveNetwork(ctx, n)
}

type countingObserver struct {
	mu      sync.Mutex
	signers map[string]int
	unlocks map[bool]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{signers: map[string]int{}, unlocks: map[bool]int{}}
}

func (o *countingObserver) ObserveSigner(_ chain.Family, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signers[outcome]++
}

func (o *countingObserver) ObserveUnlock(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlocks[ok]++
}

func utxoOptions(storage wallet.Storage) Options {
	return Options{
		Storage:       storage,
		Resolver:      &recordingResolver{},
		KDF:           testKDF,
		Networks:      []chain.Network{bitcoinMainnet(), bitcoinTestnet()},
		ActiveNetwork: bitcoinMainnet(),
	}
}

func evmOptions(storage wallet.Storage) Options {
	return Options{
		Storage:       storage,
		KDF:           testKDF,
		ActiveNetwork: ethereumMainnet(),
	}
}

// initVault sets the test seed and password on m.
func initVault(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.SetSeed(testMnemonic)
	require.NoError(t, err)
	require.NoError(t, m.SetWalletPassword(context.Background(), testPassword))
}

func newUnlockedUTXO(t *testing.T) *UTXOKeyring {
	t.Helper()
	k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)
	initVault(t, k.Manager)
	return k
}

func newUnlockedEVM(t *testing.T) *EVMKeyring {
	t.Helper()
	k, err := NewEVMKeyring(evmOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)
	initVault(t, k.Manager)
	return k
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires storage", func(t *testing.T) {
		t.Parallel()
		_, err := New(Options{Family: chain.FamilyUTXO})
		require.ErrorIs(t, err, sigilerr.ErrInvalidInput)
	})

	t.Run("rejects unknown family", func(t *testing.T) {
		t.Parallel()
		_, err := New(Options{Family: "cosmos", Storage: wallet.NewMemoryStorage()})
		require.ErrorIs(t, err, sigilerr.ErrInvalidInput)
	})

	t.Run("rejects active network of other family", func(t *testing.T) {
		t.Parallel()
		opts := utxoOptions(wallet.NewMemoryStorage())
		opts.ActiveNetwork = ethereumMainnet()
		_, err := NewUTXOKeyring(opts)
		require.ErrorIs(t, err, sigilerr.ErrCrossFamilySwitch)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		k, err := NewEVMKeyring(Options{Storage: wallet.NewMemoryStorage()})
		require.NoError(t, err)
		assert.Equal(t, chain.FamilyEVM, k.Family())
		assert.Equal(t, chain.DefaultNetwork(chain.FamilyEVM), k.ActiveNetwork())
		assert.False(t, k.IsUnlocked())
		assert.NotEmpty(t, k.Networks())
		for _, n := range k.Networks() {
			assert.Equal(t, chain.FamilyEVM, n.Family())
		}
	})
}

func TestSetSeed(t *testing.T) {
	t.Parallel()
	k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)

	got, err := k.SetSeed("  1. Abandon, abandon abandon abandon abandon abandon\nabandon abandon abandon abandon abandon ABOUT ")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, got)

	_, err = k.SetSeed("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon")
	require.ErrorIs(t, err, sigilerr.ErrInvalidSeed)

	// no accounts until the password is set
	assert.Empty(t, k.Accounts(wallet.HDAccount))
}

func TestValidateSeed(t *testing.T) {
	t.Parallel()
	k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)

	assert.Equal(t, SeedValidation{IsValid: true}, k.ValidateSeed(testMnemonic))

	v := k.ValidateSeed(strings.Replace(testMnemonic, "about", "abuot", 1))
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Message, "Word 12: 'abuot'")

	v = k.ValidateSeed("")
	assert.False(t, v.IsValid)
	assert.NotEmpty(t, v.Message)
}

func TestGenerateMnemonic(t *testing.T) {
	t.Parallel()
	k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)

	m, err := k.GenerateMnemonic(24)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 24)
	assert.True(t, k.ValidateSeed(m).IsValid)
}

func TestSetWalletPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a seed", func(t *testing.T) {
		t.Parallel()
		k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
		require.NoError(t, err)
		require.ErrorIs(t, k.SetWalletPassword(ctx, testPassword), sigilerr.ErrInvalidSeed)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		t.Parallel()
		k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
		require.NoError(t, err)
		_, err = k.SetSeed(testMnemonic)
		require.NoError(t, err)
		require.ErrorIs(t, k.SetWalletPassword(ctx, ""), sigilerr.ErrInvalidPassword)
	})

	t.Run("persists an encrypted vault", func(t *testing.T) {
		t.Parallel()
		storage := wallet.NewMemoryStorage()
		k, err := NewUTXOKeyring(utxoOptions(storage))
		require.NoError(t, err)
		initVault(t, k.Manager)

		assert.True(t, k.IsUnlocked())
		exists, err := k.VaultExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		raw, err := storage.Get(ctx, wallet.VaultRecordKey)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "abandon")
	})
}

func TestExampleScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)

	first, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), first.ID)
	assert.Equal(t, bip84Addr, first.Address)
	assert.Equal(t, bip84Zpub, first.PublicExtendedKey)
	assert.Equal(t, "Account 1", first.Label)
	assert.Empty(t, first.EncryptedPrivateExtendedKey, "display copies carry no secret")

	addresses := map[uint32]string{0: first.Address}
	for want := uint32(1); want <= 3; want++ {
		a, err := k.AddNewAccount(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, want, a.ID)
		addresses[a.ID] = a.Address
	}

	active, typ, err := k.ActiveAccount()
	require.NoError(t, err)
	assert.Equal(t, wallet.HDAccount, typ)
	assert.Equal(t, uint32(3), active.ID)

	for _, id := range []uint32{0, 2} {
		require.NoError(t, k.SetActiveAccount(ctx, id, wallet.HDAccount))
		active, _, err := k.ActiveAccount()
		require.NoError(t, err)
		assert.Equal(t, id, active.ID)
		assert.Equal(t, addresses[id], active.Address)

		s, err := k.Signer(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, s.AccountIndex())
		assert.Equal(t, addresses[id], s.Address())
	}

	for _, a := range k.Accounts(wallet.HDAccount) {
		assert.Equal(t, addresses[a.ID], a.Address)
	}
}

func TestCreateKeyringVault_OnlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)

	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	_, err = k.CreateKeyringVault(ctx)
	require.ErrorIs(t, err, sigilerr.ErrAccountExists)
}

func TestAddNewAccount_SequentialAndActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, family := range []chain.Family{chain.FamilyUTXO, chain.FamilyEVM} {
		t.Run(string(family), func(t *testing.T) {
			t.Parallel()
			var m *Manager
			if family == chain.FamilyUTXO {
				m = newUnlockedUTXO(t).Manager
			} else {
				m = newUnlockedEVM(t).Manager
			}

			seen := map[string]bool{}
			for i := uint32(0); i < 6; i++ {
				a, err := m.AddNewAccount(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, i, a.ID)
				assert.False(t, seen[a.Address], "addresses are distinct")
				seen[a.Address] = true

				active, _, err := m.ActiveAccount()
				require.NoError(t, err)
				assert.Equal(t, i, active.ID)
			}
		})
	}
}

func TestAddNewAccount_CustomLabel(t *testing.T) {
	t.Parallel()
	k := newUnlockedEVM(t)
	a, err := k.AddNewAccount(context.Background(), "Savings")
	require.NoError(t, err)
	assert.Equal(t, "Savings", a.Label)
}

func TestAddNewAccount_Locked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)
	k.LockWallet()

	_, err := k.AddNewAccount(ctx, "")
	require.ErrorIs(t, err, sigilerr.ErrLockedWallet)
	_, err = k.CreateKeyringVault(ctx)
	require.ErrorIs(t, err, sigilerr.ErrLockedWallet)
}

func TestSetActiveAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedEVM(t)

	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	_, err = k.AddNewAccount(ctx, "")
	require.NoError(t, err)

	before := k.Accounts(wallet.HDAccount)

	t.Run("unknown account", func(t *testing.T) {
		err := k.SetActiveAccount(ctx, 9, wallet.HDAccount)
		require.ErrorIs(t, err, sigilerr.ErrAccountNotFound)
		err = k.SetActiveAccount(ctx, 0, wallet.Imported)
		require.ErrorIs(t, err, sigilerr.ErrAccountNotFound)
	})

	t.Run("idempotent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, k.SetActiveAccount(ctx, 0, wallet.HDAccount))
			a, _, err := k.ActiveAccount()
			require.NoError(t, err)
			assert.Equal(t, uint32(0), a.ID)
			assert.Equal(t, evmAddr0, a.Address)
		}
		assert.Equal(t, before, k.Accounts(wallet.HDAccount))
	})

	t.Run("reuses the signer for an unchanged selection", func(t *testing.T) {
		s1, err := k.Signer(ctx)
		require.NoError(t, err)
		require.NoError(t, k.SetActiveAccount(ctx, 0, wallet.HDAccount))
		s2, err := k.Signer(ctx)
		require.NoError(t, err)
		assert.Same(t, s1, s2)
	})

	t.Run("locked wallet switches selection without a signer", func(t *testing.T) {
		k.LockWallet()
		require.NoError(t, k.SetActiveAccount(ctx, 1, wallet.HDAccount))
		a, _, err := k.ActiveAccount()
		require.NoError(t, err)
		assert.Equal(t, uint32(1), a.ID)
		assert.Nil(t, k.Signers().Current())

		_, err = k.Signer(ctx)
		require.ErrorIs(t, err, sigilerr.ErrLockedWallet)
	})
}

func TestDerivation_DeterministicAcrossRestarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	derive := func() ([]wallet.Account, []wallet.Account) {
		u := newUnlockedUTXO(t)
		e := newUnlockedEVM(t)
		for i := 0; i < 3; i++ {
			_, err := u.AddNewAccount(ctx, "")
			require.NoError(t, err)
			_, err = e.AddNewAccount(ctx, "")
			require.NoError(t, err)
		}
		return u.Accounts(wallet.HDAccount), e.Accounts(wallet.HDAccount)
	}

	u1, e1 := derive()
	u2, e2 := derive()
	assert.Equal(t, u1, u2)
	assert.Equal(t, e1, e2)
	assert.Equal(t, bip84Addr, u1[0].Address)
	assert.Equal(t, evmAddr0, e1[0].Address)
}

func TestUnlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	obs := newCountingObserver()

	opts := utxoOptions(wallet.NewMemoryStorage())
	opts.Observer = obs
	k, err := NewUTXOKeyring(opts)
	require.NoError(t, err)
	initVault(t, k.Manager)
	_, err = k.CreateKeyringVault(ctx)
	require.NoError(t, err)

	k.LockWallet()
	assert.False(t, k.IsUnlocked())

	for i := 0; i < 2; i++ {
		res := k.Unlock(ctx, "wrong password")
		assert.False(t, res.CanLogin)
		assert.Equal(t, "Invalid password", res.Message)
		assert.False(t, k.IsUnlocked())

		res = k.Unlock(ctx, testPassword)
		assert.True(t, res.CanLogin)
		assert.True(t, k.IsUnlocked())
		assert.NotNil(t, k.Signers().Current(), "unlock resolves the active signer")

		k.LockWallet()
	}
	assert.Equal(t, 2, obs.unlocks[true])
	assert.Equal(t, 2, obs.unlocks[false])
}

func TestUnlock_NoVault(t *testing.T) {
	t.Parallel()
	k, err := NewUTXOKeyring(utxoOptions(wallet.NewMemoryStorage()))
	require.NoError(t, err)

	res := k.Unlock(context.Background(), testPassword)
	assert.False(t, res.CanLogin)
	assert.Equal(t, "No vault has been created", res.Message)
}

func TestUnlock_FreshInstanceSharesStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := wallet.NewMemoryStorage()

	first, err := NewUTXOKeyring(utxoOptions(storage))
	require.NoError(t, err)
	initVault(t, first.Manager)
	_, err = first.CreateKeyringVault(ctx)
	require.NoError(t, err)
	_, err = first.AddNewAccount(ctx, "")
	require.NoError(t, err)
	state := first.State()

	second, err := NewUTXOKeyring(utxoOptions(storage))
	require.NoError(t, err)
	require.NoError(t, second.LoadState(state))
	require.True(t, second.Unlock(ctx, testPassword).CanLogin)

	s, err := second.Signer(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.AccountIndex())

	want, _, err := first.ActiveAccount()
	require.NoError(t, err)
	assert.Equal(t, want.Address, s.Address())
}

func TestExports_RequirePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)
	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)

	_, err = k.PrivateKeyByAccountID(ctx, 0, wallet.HDAccount, "nope")
	require.ErrorIs(t, err, sigilerr.ErrInvalidPassword)
	_, err = k.Seed(ctx, "nope")
	require.ErrorIs(t, err, sigilerr.ErrInvalidPassword)
	_, err = k.EncryptedXprv(ctx, "nope")
	require.ErrorIs(t, err, sigilerr.ErrInvalidPassword)

	// the password is checked against the vault, so a locked wallet exports too
	k.LockWallet()

	xprv, err := k.PrivateKeyByAccountID(ctx, 0, wallet.HDAccount, testPassword)
	require.NoError(t, err)
	assert.Equal(t, bip84Zprv, xprv)

	_, err = k.PrivateKeyByAccountID(ctx, 4, wallet.HDAccount, testPassword)
	require.ErrorIs(t, err, sigilerr.ErrAccountNotFound)

	seed, err := k.Seed(ctx, testPassword)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, seed)

	sealed, err := k.EncryptedXprv(ctx, testPassword)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "zprv")

	xpub, err := k.AccountXpub()
	require.NoError(t, err)
	assert.Equal(t, bip84Zpub, xpub)
}

func TestAccountXpub_NoAccount(t *testing.T) {
	t.Parallel()
	k := newUnlockedEVM(t)
	_, err := k.AccountXpub()
	require.ErrorIs(t, err, sigilerr.ErrAccountNotFound)
}

func TestForgetMainWallet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newUnlockedUTXO(t)
	_, err := k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	require.NoError(t, k.SetAccountLabel(wallet.HDAccount, 0, "Main"))
	networks := k.Networks()

	require.ErrorIs(t, k.ForgetMainWallet(ctx, "nope"), sigilerr.ErrInvalidPassword)
	assert.Len(t, k.Accounts(wallet.HDAccount), 1)

	require.NoError(t, k.ForgetMainWallet(ctx, testPassword))
	assert.Empty(t, k.Accounts(wallet.HDAccount))
	assert.Equal(t, networks, k.Networks())
	assert.Equal(t, bitcoinMainnet(), k.ActiveNetwork())
	assert.False(t, k.IsUnlocked())
	assert.Nil(t, k.Signers().Current())

	exists, err := k.VaultExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, k.Unlock(ctx, testPassword).CanLogin)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := wallet.NewMemoryStorage()
	k, err := NewUTXOKeyring(utxoOptions(storage))
	require.NoError(t, err)
	initVault(t, k.Manager)
	_, err = k.CreateKeyringVault(ctx)
	require.NoError(t, err)
	_, err = k.ImportAccount(ctx, rawKeyHex, "", nil)
	require.NoError(t, err)
	before, err := k.PrivateKeyByAccountID(ctx, 0, wallet.Imported, testPassword)
	require.NoError(t, err)

	require.ErrorIs(t, k.ChangePassword(ctx, "nope", "new"), sigilerr.ErrInvalidPassword)
	require.ErrorIs(t, k.ChangePassword(ctx, testPassword, ""), sigilerr.ErrInvalidPassword)
	require.NoError(t, k.ChangePassword(ctx, testPassword, "new password"))
	assert.True(t, k.IsUnlocked())

	after, err := k.PrivateKeyByAccountID(ctx, 0, wallet.Imported, "new password")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	xprv, err := k.PrivateKeyByAccountID(ctx, 0, wallet.HDAccount, "new password")
	require.NoError(t, err)
	assert.Equal(t, bip84Zprv, xprv)

	// a fresh instance over the same storage sees the new password only
	fresh, err := NewUTXOKeyring(utxoOptions(storage))
	require.NoError(t, err)
	assert.False(t, fresh.Unlock(ctx, testPassword).CanLogin)
	assert.True(t, fresh.Unlock(ctx, "new password").CanLogin)
}

func TestLoadState(t *testing.T) {
	t.Parallel()
	k := newUnlockedUTXO(t)

	require.ErrorIs(t, k.LoadState(nil), sigilerr.ErrInvalidInput)

	foreign := wallet.NewVaultState(nil, ethereumMainnet())
	require.ErrorIs(t, k.LoadState(foreign), sigilerr.ErrCrossFamilySwitch)

	empty := &wallet.VaultState{}
	require.NoError(t, k.LoadState(empty))
	assert.Equal(t, bitcoinMainnet(), k.ActiveNetwork(), "zero network keeps the current one")

	s := k.State()
	s.ActiveNetwork = bitcoinTestnet()
	assert.Equal(t, bitcoinMainnet(), k.ActiveNetwork(), "State returns a copy")
}

func TestChangePassword_ResealsSharedTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := wallet.NewMemoryStorage()

	u, err := NewUTXOKeyring(utxoOptions(storage))
	require.NoError(t, err)
	initVault(t, u.Manager)

	e, err := NewEVMKeyring(evmOptions(storage))
	require.NoError(t, err)
	require.True(t, e.Unlock(ctx, testPassword).CanLogin)
	_, err = e.ImportAccount(ctx, rawKeyHex, "", nil)
	require.NoError(t, err)
	evmState := e.State()

	require.NoError(t, u.ChangePassword(ctx, testPassword, "new password", evmState))

	fresh, err := NewEVMKeyring(evmOptions(storage))
	require.NoError(t, err)
	require.NoError(t, fresh.LoadState(evmState))
	key, err := fresh.PrivateKeyByAccountID(ctx, 0, wallet.Imported, "new password")
	require.NoError(t, err)
	assert.Equal(t, "0x"+rawKeyHex, key)
}
