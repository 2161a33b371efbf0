package hardware

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/chain"
)

type fakeWallet struct {
	accounts.Wallet

	url       accounts.URL
	openErr   error
	openGate  chan struct{}
	status    string
	statusErr error
	signErr   error

	mu      sync.Mutex
	opened  int
	closed  int
	derived []accounts.DerivationPath
}

func newFakeWallet(path string) *fakeWallet {
	return &fakeWallet{
		url:    accounts.URL{Scheme: "ledger", Path: path},
		status: "Ethereum app v1.12.0 online",
	}
}

func (w *fakeWallet) URL() accounts.URL { return w.url }

func (w *fakeWallet) Open(string) error {
	if w.openGate != nil {
		<-w.openGate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.openErr != nil {
		return w.openErr
	}
	w.opened++
	return nil
}

func (w *fakeWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *fakeWallet) Status() (string, error) { return w.status, w.statusErr }

func (w *fakeWallet) Derive(path accounts.DerivationPath, _ bool) (accounts.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.derived = append(w.derived, path)
	return accounts.Account{URL: w.url}, nil
}

func (w *fakeWallet) SignTx(_ accounts.Account, tx *types.Transaction, _ *big.Int) (*types.Transaction, error) {
	if w.signErr != nil {
		return nil, w.signErr
	}
	return tx, nil
}

func (w *fakeWallet) counts() (opened, closed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened, w.closed
}

type fakeHub struct {
	wallets []accounts.Wallet
}

func (h *fakeHub) Wallets() []accounts.Wallet { return h.wallets }

// newUSBConnector builds a connector over hub and counts hub creations.
func newUSBConnector(vendor Vendor, hub walletHub, hubErr error) (*USBConnector, *int) {
	opens := new(int)
	return &USBConnector{vendor: vendor, openHub: func() (walletHub, error) {
		*opens++
		if hubErr != nil {
			return nil, hubErr
		}
		return hub, nil
	}}, opens
}

func TestUSBConnector_Constructors(t *testing.T) {
	t.Parallel()
	assert.Equal(t, VendorLedger, NewLedgerUSBConnector().Vendor())
	assert.Equal(t, VendorTrezor, NewTrezorUSBConnector().Vendor())
	require.NoError(t, NewLedgerUSBConnector().Dispose())
}

func TestUSBConnector_OpensFirstDevice(t *testing.T) {
	t.Parallel()
	first, second := newFakeWallet("0001"), newFakeWallet("0002")
	c, opens := newUSBConnector(VendorLedger, &fakeHub{wallets: []accounts.Wallet{first, second}}, nil)

	tr, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Probe(context.Background()))
	opened, _ := first.counts()
	assert.Equal(t, 1, opened)
	opened, _ = second.counts()
	assert.Zero(t, opened)

	require.NoError(t, tr.Close())
	_, closed := first.counts()
	assert.Equal(t, 1, closed)

	_, err = c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, *opens)
}

func TestUSBConnector_NoDevice(t *testing.T) {
	t.Parallel()
	c, _ := newUSBConnector(VendorLedger, &fakeHub{}, nil)
	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestUSBConnector_HubUnavailable(t *testing.T) {
	t.Parallel()
	c, opens := newUSBConnector(VendorTrezor, nil, errors.New("unsupported platform"))
	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")

	_, err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, *opens)
}

func TestUSBConnector_OpenErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		openErr error
		want    error
	}{
		{"already open", accounts.ErrWalletAlreadyOpen, ErrAlreadyInitialized},
		{"pin needed", usbwallet.ErrTrezorPINNeeded, ErrNotConnected},
		{"other", errors.New("ethereum app offline"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := newFakeWallet("0001")
			w.openErr = tt.openErr
			c, _ := newUSBConnector(VendorTrezor, &fakeHub{wallets: []accounts.Wallet{w}}, nil)

			_, err := c.Connect(context.Background())
			require.ErrorIs(t, err, tt.openErr)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, errors.Is(tt.openErr, accounts.ErrWalletAlreadyOpen), isAlreadyInitialized(err))
		})
	}
}

func TestUSBConnector_CancelledOpenClosesLateWallet(t *testing.T) {
	t.Parallel()
	w := newFakeWallet("0001")
	w.openGate = make(chan struct{})
	c, _ := newUSBConnector(VendorLedger, &fakeHub{wallets: []accounts.Wallet{w}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(w.openGate)
	assert.Eventually(t, func() bool {
		opened, closed := w.counts()
		return opened == 1 && closed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestUSBTransport_Probe(t *testing.T) {
	t.Parallel()
	closedWallet := newFakeWallet("0001")
	closedWallet.status = statusClosed
	require.ErrorIs(t, (&usbTransport{wallet: closedWallet}).Probe(context.Background()), ErrNotConnected)

	failing := newFakeWallet("0002")
	failing.statusErr = errors.New("heartbeat failed")
	require.ErrorIs(t, (&usbTransport{wallet: failing}).Probe(context.Background()), ErrNotConnected)
}

func TestUSBConnector_DisposeClosesWalletsAndDropsHub(t *testing.T) {
	t.Parallel()
	w := newFakeWallet("0001")
	c, opens := newUSBConnector(VendorLedger, &fakeHub{wallets: []accounts.Wallet{w}}, nil)

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Dispose())
	_, closed := w.counts()
	assert.Equal(t, 1, closed)

	_, err = c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *opens)
}

func TestUSBConnector_ThroughManagerSignsTx(t *testing.T) {
	t.Parallel()
	w := newFakeWallet("0001")
	c, _ := newUSBConnector(VendorLedger, &fakeHub{wallets: []accounts.Wallet{w}}, nil)
	m := newTestManager(t, fastOptions(), c)

	net := chain.Network{ChainID: 1, URL: "https://rpc.example", Slip44: chain.CoinTypeEVM}
	s := NewSigner(m, SignerConfig{Vendor: VendorLedger, Network: net, Path: "m/44'/60'/0'/0/2"})

	tx := types.NewTx(&types.LegacyTx{Nonce: 7, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := s.SignTx(context.Background(), tx, big.NewInt(1))
	require.NoError(t, err)
	assert.Same(t, tx, signed)
	assert.True(t, m.IsConnected(VendorLedger))

	want, err := accounts.ParseDerivationPath("m/44'/60'/0'/0/2")
	require.NoError(t, err)
	w.mu.Lock()
	assert.Equal(t, []accounts.DerivationPath{want}, w.derived)
	w.mu.Unlock()

	// usbwallet devices refuse raw digests
	_, err = s.SignDigest(make([]byte, 32))
	require.ErrorIs(t, err, ErrSigningUnsupported)
}

func TestSigner_SignTxErrors(t *testing.T) {
	t.Parallel()
	rejecting := newFakeWallet("0001")
	rejecting.signErr = errors.New("denied by the user")
	usb, _ := newUSBConnector(VendorTrezor, &fakeHub{wallets: []accounts.Wallet{rejecting}}, nil)
	plain := newFakeConnector(VendorLedger, connectResult{t: &fakeTransport{}})
	m := newTestManager(t, fastOptions(), usb, plain)

	evmNet := chain.Network{ChainID: 1, URL: "https://rpc.example", Slip44: chain.CoinTypeEVM}
	tx := types.NewTx(&types.LegacyTx{Nonce: 1})

	_, err := NewSigner(m, SignerConfig{Vendor: VendorTrezor, Network: evmNet, Path: "m/44'/60'/0'/0/0"}).
		SignTx(context.Background(), tx, big.NewInt(1))
	require.ErrorIs(t, err, ErrUserCancelled)

	_, err = NewSigner(m, SignerConfig{Vendor: VendorLedger, Network: evmNet, Path: "m/44'/60'/0'/0/0"}).
		SignTx(context.Background(), tx, big.NewInt(1))
	require.ErrorIs(t, err, ErrSigningUnsupported)

	utxoNet := chain.DefaultNetwork(chain.FamilyUTXO)
	_, err = NewSigner(m, SignerConfig{Vendor: VendorTrezor, Network: utxoNet, Path: "m/84'/57'/0'"}).
		SignTx(context.Background(), tx, big.NewInt(1))
	require.ErrorIs(t, err, ErrSigningUnsupported)
}
