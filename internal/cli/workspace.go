package cli

import (
	"context"
	"errors"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/hardware"
	"github.com/mrz1836/sigil-keyring/internal/keyring"
	"github.com/mrz1836/sigil-keyring/internal/network"
	"github.com/mrz1836/sigil-keyring/internal/sigilcrypto"
	"github.com/mrz1836/sigil-keyring/internal/wallet"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// errNoVault is returned by commands that need a vault before one exists.
var errNoVault = sigilerr.WithSuggestion(sigilerr.ErrVaultNotInitialized, "create one with: sigil-keyring vault init")

// familyStorage keeps one account table per family next to the shared vault
// record, so UTXO and EVM keyrings can use the same store.
type familyStorage struct {
	wallet.Storage

	family chain.Family
}

func stateKey(f chain.Family) string {
	return wallet.StateRecordKey + "-" + f.String()
}

func (s familyStorage) key(k string) string {
	if k == wallet.StateRecordKey {
		return stateKey(s.family)
	}
	return k
}

func (s familyStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.Storage.Get(ctx, s.key(key))
}

func (s familyStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.Storage.Set(ctx, s.key(key), value)
}

// openStorage opens the configured backend. close is never nil.
func openStorage(cfg *config.Config) (storage wallet.Storage, closeFn func() error, err error) {
	noop := func() error { return nil }

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return wallet.NewMemoryStorage(), noop, nil
	case config.StorageKeychain:
		if !wallet.ProbeKeychain(cfg.Storage.KeychainService) {
			return nil, nil, sigilerr.WithSuggestion(sigilerr.ErrPermission,
				"the OS keychain is unavailable; set storage.backend to file or bolt")
		}
		return wallet.NewKeychainStorage(cfg.Storage.KeychainService), noop, nil
	}

	path, err := cfg.StoragePath()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Backend == config.StorageBolt {
		b, err := wallet.OpenBoltStorage(path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	return wallet.NewFileStorage(path), noop, nil
}

// newHardwareManager builds the device pool from the hardware config.
func newHardwareManager(cc *CommandContext) *hardware.Manager {
	opts := hardware.OptionsFromConfig(cc.Cfg.Hardware)
	opts.Logger = cc.Log.Component("hardware")
	if cc.Metrics != nil {
		opts.Observer = cc.Metrics
	}

	connectors := []hardware.Connector{hardware.NewLedgerUSBConnector()}
	if url := cc.Cfg.Hardware.TrezorBridgeURL; url != "" {
		connectors = append(connectors, hardware.NewBridgeConnector(url, nil))
	} else {
		connectors = append(connectors, hardware.NewTrezorUSBConnector())
	}
	return hardware.NewManager(opts, connectors...)
}

// workspace is the keyring of one command invocation, loaded from storage.
type workspace struct {
	cc      *CommandContext
	base    wallet.Storage
	storage wallet.Storage
	closeFn func() error
	hw      *hardware.Manager
	kr      *keyring.Manager
}

// openWorkspace builds the keyring for the configured family and loads its
// saved account table.
func openWorkspace(ctx context.Context, cc *CommandContext) (*workspace, error) {
	base, closeFn, err := openStorage(cc.Cfg)
	if err != nil {
		return nil, err
	}
	family := cc.Cfg.Family()
	w := &workspace{
		cc:      cc,
		base:    base,
		storage: familyStorage{Storage: base, family: family},
		closeFn: closeFn,
		hw:      newHardwareManager(cc),
	}

	var resolverObs network.Observer
	opts := keyring.Options{
		Family:   family,
		Storage:  w.storage,
		Hardware: w.hw,
		KDF:      sigilcrypto.KDFParams{Iterations: cc.Cfg.Keyring.KDFIterations},
		AutoLock: cc.Cfg.AutoLock(),
		Networks: configNetworks(cc.Cfg),
		Logger:   cc.Log.Component("keyring"),
	}
	if cc.Metrics != nil {
		opts.Observer = cc.Metrics
		resolverObs = cc.Metrics
	}
	opts.Resolver = network.FromConfig(cc.Cfg.Resolver, cc.Log.Component("network"), resolverObs)

	w.kr, err = keyring.New(opts)
	if err != nil {
		w.Close()
		return nil, err
	}

	state, found, err := wallet.LoadState(ctx, w.storage)
	if err != nil {
		w.Close()
		return nil, err
	}
	if found {
		if err := w.kr.LoadState(state); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

// configNetworks returns the configured registry, always including the
// built-in networks.
func configNetworks(cfg *config.Config) []chain.Network {
	networks := chain.DefaultNetworks()
	for _, n := range cfg.Networks {
		if !n.Default {
			networks = append(networks, n)
		}
	}
	return networks
}

// requireVault fails with errNoVault when no vault record exists.
func (w *workspace) requireVault(ctx context.Context) error {
	exists, err := w.kr.VaultExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return errNoVault
	}
	return nil
}

// unlock prompts for the wallet password and opens a session.
func (w *workspace) unlock(ctx context.Context) error {
	if w.kr.IsUnlocked() {
		return nil
	}
	if err := w.requireVault(ctx); err != nil {
		return err
	}
	return withPassword("Enter wallet password: ", func(password string) error {
		res := w.kr.Unlock(ctx, password)
		if !res.CanLogin {
			return sigilerr.WithDetails(sigilerr.ErrInvalidPassword, map[string]string{"reason": res.Message})
		}
		return nil
	})
}

// save persists the account table.
func (w *workspace) save(ctx context.Context) error {
	return wallet.SaveState(ctx, w.storage, w.kr.State())
}

// retryUnlocked runs fn and, when it fails only because the wallet is
// locked, unlocks and runs it again.
func (w *workspace) retryUnlocked(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, sigilerr.ErrLockedWallet) || w.kr.IsUnlocked() {
		return err
	}
	if err := w.unlock(ctx); err != nil {
		return err
	}
	return fn()
}

// Close locks the keyring and releases devices and storage.
func (w *workspace) Close() {
	if w.kr != nil {
		w.kr.LockWallet()
	}
	w.hw.Destroy()
	if err := w.closeFn(); err != nil {
		w.cc.Log.Error("closing storage: %v", err)
	}
}
