package hardware

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/core/types"
)

// statusClosed is what usbwallet reports for a wallet without an open device.
const statusClosed = "Closed"

// TxSigner is implemented by transports that sign EVM transactions with the
// key at a derivation path.
type TxSigner interface {
	SignTx(ctx context.Context, path string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// walletHub lists the wallets of one vendor. *usbwallet.Hub satisfies it.
type walletHub interface {
	Wallets() []accounts.Wallet
}

// hubs merges the wallets of several hubs of the same vendor.
type hubs []walletHub

func (h hubs) Wallets() []accounts.Wallet {
	var out []accounts.Wallet
	for _, hub := range h {
		out = append(out, hub.Wallets()...)
	}
	return out
}

// USBConnector opens devices over USB HID through go-ethereum's usbwallet
// hubs. The hub is created on first Connect so commands that never touch a
// device do not enumerate USB.
type USBConnector struct {
	vendor  Vendor
	openHub func() (walletHub, error)

	mu  sync.Mutex
	hub walletHub
}

// NewLedgerUSBConnector returns a connector for Ledger devices running the
// Ethereum app.
func NewLedgerUSBConnector() *USBConnector {
	return &USBConnector{vendor: VendorLedger, openHub: openLedgerHub}
}

// NewTrezorUSBConnector returns a connector for Trezor devices on either
// WebUSB or legacy HID firmware.
func NewTrezorUSBConnector() *USBConnector {
	return &USBConnector{vendor: VendorTrezor, openHub: openTrezorHubs}
}

func openLedgerHub() (walletHub, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, err
	}
	return hub, nil
}

func openTrezorHubs() (walletHub, error) {
	webusb, err := usbwallet.NewTrezorHubWithWebUSB()
	if err != nil {
		return nil, err
	}
	legacy, err := usbwallet.NewTrezorHubWithHID()
	if err != nil {
		return nil, err
	}
	return hubs{webusb, legacy}, nil
}

// Vendor returns the vendor the connector was built for.
func (c *USBConnector) Vendor() Vendor { return c.vendor }

// Connect opens the first device the hub lists. Opening blocks on the
// device, so it runs aside and a wallet opened after ctx ends is closed.
func (c *USBConnector) Connect(ctx context.Context) (Transport, error) {
	hub, err := c.currentHub()
	if err != nil {
		return nil, err
	}
	wallets := hub.Wallets()
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: no %s device on USB", ErrNotConnected, c.vendor)
	}
	w := wallets[0]

	done := make(chan error, 1)
	go func() { done <- w.Open("") }()

	select {
	case err := <-done:
		if err != nil {
			return nil, openError(w, err)
		}
		return &usbTransport{wallet: w}, nil
	case <-ctx.Done():
		go func() {
			if <-done == nil {
				_ = w.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Dispose closes every wallet the hub knows and drops the hub, so the next
// Connect enumerates afresh.
func (c *USBConnector) Dispose() error {
	c.mu.Lock()
	hub := c.hub
	c.hub = nil
	c.mu.Unlock()

	if hub == nil {
		return nil
	}
	var errs []error
	for _, w := range hub.Wallets() {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *USBConnector) currentHub() (walletHub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hub != nil {
		return c.hub, nil
	}
	hub, err := c.openHub()
	if err != nil {
		return nil, fmt.Errorf("opening %s USB hub: %w", c.vendor, err)
	}
	c.hub = hub
	return hub, nil
}

func openError(w accounts.Wallet, err error) error {
	switch {
	case errors.Is(err, accounts.ErrWalletAlreadyOpen):
		return fmt.Errorf("%w: %s: %w", ErrAlreadyInitialized, w.URL(), err)
	case errors.Is(err, usbwallet.ErrTrezorPINNeeded):
		return fmt.Errorf("%w: unlock the device with its PIN: %w", ErrNotConnected, err)
	default:
		return fmt.Errorf("opening %s: %w", w.URL(), err)
	}
}

// usbTransport is an open usbwallet wallet. It signs transactions only; the
// device apps refuse raw digests.
type usbTransport struct {
	wallet accounts.Wallet
}

// Probe reads the wallet status, which the usbwallet heartbeat keeps current.
func (t *usbTransport) Probe(context.Context) error {
	status, err := t.wallet.Status()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if status == statusClosed {
		return ErrNotConnected
	}
	return nil
}

func (t *usbTransport) Close() error {
	return t.wallet.Close()
}

// SignTx pins the account at path and signs tx on the device.
func (t *usbTransport) SignTx(ctx context.Context, path string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	dp, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("parsing path %q: %w", path, err)
	}

	type result struct {
		tx  *types.Transaction
		err error
	}
	done := make(chan result, 1)
	go func() {
		acct, err := t.wallet.Derive(dp, true)
		if err != nil {
			done <- result{err: err}
			return
		}
		signed, err := t.wallet.SignTx(acct, tx, chainID)
		done <- result{tx: signed, err: err}
	}()

	select {
	case r := <-done:
		return r.tx, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var (
	_ Connector = (*USBConnector)(nil)
	_ TxSigner  = (*usbTransport)(nil)
)
