package hardware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBridgeURL is where Trezor Bridge listens by default.
const DefaultBridgeURL = "http://127.0.0.1:21325"

// bridgeOrigin is sent with every request; the bridge only answers
// allow-listed origins and accepts localhost.
const bridgeOrigin = "http://localhost"

// bridgeDevice is one entry of the /enumerate answer.
type bridgeDevice struct {
	Path    string  `json:"path"`
	Session *string `json:"session"`
	Vendor  int     `json:"vendor"`
	Product int     `json:"product"`
}

type bridgeError struct {
	Error string `json:"error"`
}

// BridgeConnector opens Trezor sessions through the Trezor Bridge daemon.
type BridgeConnector struct {
	url        string
	httpClient *http.Client
}

// NewBridgeConnector creates a connector. An empty url uses DefaultBridgeURL
// and a nil client uses one with a 10s timeout.
func NewBridgeConnector(url string, httpClient *http.Client) *BridgeConnector {
	if url == "" {
		url = DefaultBridgeURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BridgeConnector{url: strings.TrimRight(url, "/"), httpClient: httpClient}
}

// Vendor returns VendorTrezor.
func (c *BridgeConnector) Vendor() Vendor { return VendorTrezor }

// Connect acquires a session on the first enumerated device, taking over any
// session the device already holds.
func (c *BridgeConnector) Connect(ctx context.Context) (Transport, error) {
	devices, err := c.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: bridge reports no device", ErrNotConnected)
	}

	d := devices[0]
	previous := "null"
	if d.Session != nil {
		previous = *d.Session
	}

	var acquired struct {
		Session string `json:"session"`
	}
	if err := c.post(ctx, "/acquire/"+d.Path+"/"+previous, &acquired); err != nil {
		return nil, err
	}
	return &bridgeTransport{c: c, path: d.Path, session: acquired.Session}, nil
}

// Dispose drops idle HTTP connections to the bridge.
func (c *BridgeConnector) Dispose() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *BridgeConnector) enumerate(ctx context.Context) ([]bridgeDevice, error) {
	var devices []bridgeDevice
	if err := c.post(ctx, "/enumerate", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// post issues a bridge call. Every bridge endpoint is a POST.
func (c *BridgeConnector) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Origin", bridgeOrigin)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling bridge %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading bridge %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var be bridgeError
		if json.Unmarshal(body, &be) == nil && be.Error != "" {
			return fmt.Errorf("bridge %s: %s", path, be.Error)
		}
		return fmt.Errorf("bridge %s: status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding bridge %s: %w", path, err)
	}
	return nil
}

// bridgeTransport is an acquired bridge session.
type bridgeTransport struct {
	c       *BridgeConnector
	path    string
	session string
}

// Probe checks the device is still enumerated under our session.
func (t *bridgeTransport) Probe(ctx context.Context) error {
	devices, err := t.c.enumerate(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.Path != t.path {
			continue
		}
		if d.Session == nil || *d.Session != t.session {
			return fmt.Errorf("%w: session %s was taken over", ErrNotConnected, t.session)
		}
		return nil
	}
	return fmt.Errorf("%w: device %s unplugged", ErrNotConnected, t.path)
}

// Close releases the session.
func (t *bridgeTransport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.c.post(ctx, "/release/"+t.session, nil)
}
