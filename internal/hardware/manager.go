package hardware

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
)

// Default timings.
const (
	DefaultConnectTimeout   = config.DefaultConnectTimeout
	DefaultTrezorAttempts   = config.DefaultTrezorAttempts
	DefaultMonitorInterval  = config.DefaultMonitorInterval
	DefaultIdleTimeout      = config.DefaultIdleTimeout
	DefaultTrezorRetryDelay = 500 * time.Millisecond

	// maxTrezorAttempts bounds the Trezor policy: its connect shows a popup
	// that must not be repeated more than once.
	maxTrezorAttempts = 2
)

// Observer receives connection telemetry. It is satisfied by the metrics package.
type Observer interface {
	ObserveAttempt(vendor string)
	ObserveRetry(vendor string)
	ObserveFailure(vendor string, err error)
	ObserveEviction(vendor string)
	ObserveStatus(vendor, status string, statuses []string)
}

// Options configures a Manager. Zero values use defaults.
type Options struct {
	// ConnectTimeout bounds a single transport creation.
	ConnectTimeout time.Duration
	// LedgerPolicy is the Ledger retry schedule.
	LedgerPolicy chain.BackoffPolicy
	// TrezorAttempts is the Trezor attempt budget, at most 2.
	TrezorAttempts int
	// TrezorRetryDelay is the pause before the Trezor retry.
	TrezorRetryDelay time.Duration
	// MonitorInterval is how often idle entries are scanned.
	MonitorInterval time.Duration
	// IdleTimeout evicts connections unused for this long.
	IdleTimeout time.Duration

	Logger   config.LogWriter
	Observer Observer
}

// OptionsFromConfig maps the hardware config section to Options.
func OptionsFromConfig(cfg config.HardwareConfig) Options {
	return Options{
		ConnectTimeout:  cfg.ConnectTimeout,
		LedgerPolicy:    cfg.Ledger,
		TrezorAttempts:  cfg.TrezorAttempts,
		MonitorInterval: cfg.MonitorInterval,
		IdleTimeout:     cfg.IdleTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.LedgerPolicy.MaxAttempts == 0 {
		o.LedgerPolicy = chain.DefaultBackoffPolicy()
	}
	if o.TrezorAttempts <= 0 {
		o.TrezorAttempts = DefaultTrezorAttempts
	}
	if o.TrezorAttempts > maxTrezorAttempts {
		o.TrezorAttempts = maxTrezorAttempts
	}
	if o.TrezorRetryDelay <= 0 {
		o.TrezorRetryDelay = DefaultTrezorRetryDelay
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.Logger == nil {
		o.Logger = config.NullLogger()
	}
	return o
}

// entry is one pooled connection. Fields are guarded by Manager.mu.
type entry struct {
	vendor       Vendor
	transport    Transport
	status       Status
	lastActivity time.Time
	retryCount   int
	lastErr      error
}

func (e *entry) snapshot() EntryStatus {
	s := EntryStatus{
		Key:          e.vendor.Key(),
		Vendor:       e.vendor,
		Status:       e.status,
		LastActivity: e.lastActivity,
		RetryCount:   e.retryCount,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Manager owns the connection pool.
type Manager struct {
	opts       Options
	connectors map[Vendor]Connector
	events     *broker

	mu        sync.Mutex
	entries   map[string]*entry
	destroyed bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewManager creates a manager for the given connectors and starts the idle
// monitor. Call Destroy to stop it.
func NewManager(opts Options, connectors ...Connector) *Manager {
	m := &Manager{
		opts:       opts.withDefaults(),
		connectors: make(map[Vendor]Connector, len(connectors)),
		events:     newBroker(),
		entries:    make(map[string]*entry),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, c := range connectors {
		m.connectors[c.Vendor()] = c
	}
	go m.monitor()
	return m
}

// Subscribe returns a stream of pool events and a function ending the
// subscription. Delivery never blocks the manager; a full buffer drops events.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}

// EnsureConnection returns once vendor has a connected transport, creating
// one under the vendor's retry policy when needed.
func (m *Manager) EnsureConnection(ctx context.Context, vendor Vendor) error {
	connector, ok := m.connectors[vendor]
	if !ok {
		return ErrUnsupportedVendor
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrManagerDestroyed
	}
	e := m.entryLocked(vendor)
	if e.status == StatusConnected && e.transport != nil {
		e.lastActivity = time.Now()
		m.mu.Unlock()
		return nil
	}
	e.status = StatusConnecting
	e.retryCount = 0
	m.mu.Unlock()

	var (
		t   Transport
		err error
	)
	switch vendor {
	case VendorTrezor:
		t, err = m.connectTrezor(ctx, connector)
	default:
		t, err = m.connectLedger(ctx, connector)
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return ErrManagerDestroyed
	}
	e = m.entryLocked(vendor)
	if err != nil {
		e.status = StatusError
		e.lastErr = err
		m.mu.Unlock()

		m.opts.Logger.Error("%s connection failed: %v", vendor, err)
		m.events.publish(Event{Kind: EventConnectionFailed, Vendor: vendor, Err: err})
		if m.opts.Observer != nil {
			m.opts.Observer.ObserveFailure(vendor.String(), err)
		}
		return err
	}
	if e.transport != nil && e.transport != t {
		_ = e.transport.Close()
	}
	e.transport = t
	e.status = StatusConnected
	e.lastActivity = time.Now()
	e.lastErr = nil
	m.mu.Unlock()

	m.opts.Logger.Debug("%s connected", vendor)
	m.events.publish(Event{Kind: EventConnected, Vendor: vendor})
	return nil
}

// IsConnected reports whether vendor has a connected transport.
func (m *Manager) IsConnected(vendor Vendor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[vendor.Key()]
	return ok && e.status == StatusConnected && e.transport != nil
}

// Transport returns the connected transport of vendor and marks it active.
func (m *Manager) Transport(vendor Vendor) (Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[vendor.Key()]
	if !ok || e.status != StatusConnected || e.transport == nil {
		return nil, false
	}
	e.lastActivity = time.Now()
	return e.transport, true
}

// Status returns a snapshot of every pooled entry ordered by key.
func (m *Manager) Status() []EntryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() []EntryStatus {
	out := make([]EntryStatus, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MarkDisconnected records a device-reported disconnect. The transport is
// kept so a later Trezor "already initialized" answer can probe it.
func (m *Manager) MarkDisconnected(vendor Vendor, cause error) {
	m.mu.Lock()
	e, ok := m.entries[vendor.Key()]
	if !ok || e.status != StatusConnected {
		m.mu.Unlock()
		return
	}
	e.status = StatusDisconnected
	e.lastErr = cause
	m.mu.Unlock()

	m.opts.Logger.Debug("%s disconnected: %v", vendor, cause)
	m.events.publish(Event{Kind: EventDisconnected, Vendor: vendor, Err: cause})
}

// Close closes and removes the entry of vendor.
func (m *Manager) Close(vendor Vendor) error {
	m.mu.Lock()
	e, ok := m.entries[vendor.Key()]
	if ok {
		delete(m.entries, vendor.Key())
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.events.publish(Event{Kind: EventDisconnected, Vendor: vendor})
	if e.transport != nil {
		return e.transport.Close()
	}
	return nil
}

// Destroy stops the monitor, closes every transport, and disposes every
// connector. Failures are logged and never returned. Safe to call twice.
func (m *Manager) Destroy() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		if e.transport == nil {
			continue
		}
		vendor, t := e.vendor, e.transport
		g.Go(func() error {
			if err := t.Close(); err != nil {
				m.opts.Logger.Error("closing %s transport: %v", vendor, err)
			}
			return nil
		})
	}
	for vendor, c := range m.connectors {
		g.Go(func() error {
			if err := c.Dispose(); err != nil {
				m.opts.Logger.Error("disposing %s connector: %v", vendor, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.events.close()
}

// entryLocked returns the entry of vendor, creating it disconnected.
func (m *Manager) entryLocked(vendor Vendor) *entry {
	e, ok := m.entries[vendor.Key()]
	if !ok {
		e = &entry{vendor: vendor, status: StatusDisconnected}
		m.entries[vendor.Key()] = e
	}
	return e
}

// existingTransport returns the pooled transport of vendor, if any.
func (m *Manager) existingTransport(vendor Vendor) Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[vendor.Key()]; ok {
		return e.transport
	}
	return nil
}

// dropTransport closes and forgets the pooled transport of vendor.
func (m *Manager) dropTransport(vendor Vendor) {
	m.mu.Lock()
	var t Transport
	if e, ok := m.entries[vendor.Key()]; ok {
		t = e.transport
		e.transport = nil
	}
	m.mu.Unlock()
	if t != nil {
		if err := t.Close(); err != nil {
			m.opts.Logger.Debug("closing stale %s transport: %v", vendor, err)
		}
	}
}

// noteRetry records a retry on the entry and publishes it.
func (m *Manager) noteRetry(vendor Vendor, attempt int, delay time.Duration, cause error) {
	m.mu.Lock()
	if e, ok := m.entries[vendor.Key()]; ok {
		e.retryCount++
		e.lastErr = cause
	}
	m.mu.Unlock()

	m.opts.Logger.Debug("%s attempt %d failed, retrying in %s: %v", vendor, attempt, delay, cause)
	m.events.publish(Event{Kind: EventRetrying, Vendor: vendor, Attempt: attempt, Delay: delay, Err: cause})
	if m.opts.Observer != nil {
		m.opts.Observer.ObserveRetry(vendor.String())
	}
}

// noteAttempt publishes a connection attempt.
func (m *Manager) noteAttempt(vendor Vendor, attempt int) {
	m.events.publish(Event{Kind: EventConnectionAttempt, Vendor: vendor, Attempt: attempt})
	if m.opts.Observer != nil {
		m.opts.Observer.ObserveAttempt(vendor.String())
	}
}

func (m *Manager) monitor() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

// sweep evicts idle connections and publishes a status snapshot. A
// disconnected entry still holding its transport is evicted on the same
// idle clock.
func (m *Manager) sweep(now time.Time) {
	var evicted []*entry

	m.mu.Lock()
	for key, e := range m.entries {
		holding := e.status == StatusConnected || (e.status == StatusDisconnected && e.transport != nil)
		if holding && now.Sub(e.lastActivity) > m.opts.IdleTimeout {
			evicted = append(evicted, e)
			delete(m.entries, key)
		}
	}
	statuses := m.statusLocked()
	m.mu.Unlock()

	for _, e := range evicted {
		if e.transport != nil {
			if err := e.transport.Close(); err != nil {
				m.opts.Logger.Error("closing idle %s transport: %v", e.vendor, err)
			}
		}
		m.opts.Logger.Debug("%s evicted after %s idle", e.vendor, m.opts.IdleTimeout)
		m.events.publish(Event{Kind: EventDisconnected, Vendor: e.vendor, Err: errIdle})
		if m.opts.Observer != nil {
			m.opts.Observer.ObserveEviction(e.vendor.String())
			m.opts.Observer.ObserveStatus(e.vendor.String(), string(StatusDisconnected), statusNames())
		}
	}

	if m.opts.Observer != nil {
		for _, s := range statuses {
			m.opts.Observer.ObserveStatus(s.Vendor.String(), string(s.Status), statusNames())
		}
	}
	m.events.publish(Event{Kind: EventStatusUpdate, Statuses: statuses})
}

// errIdle is the cause attached to idle eviction events.
var errIdle = errors.New("idle timeout")
