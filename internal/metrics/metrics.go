// Package metrics collects keyring and hardware-connection metrics on a
// private prometheus registry.
package metrics

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

const namespace = "sigil_keyring"

// Signer outcomes.
const (
	SignerRebuilt = "rebuilt"
	SignerReused  = "reused"
	SignerFailed  = "failed"
)

// Metrics holds the collectors. All methods are safe for concurrent use and
// a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolves *prometheus.CounterVec
	signers  *prometheus.CounterVec
	unlocks  *prometheus.CounterVec

	hwAttempts  *prometheus.CounterVec
	hwRetries   *prometheus.CounterVec
	hwFailures  *prometheus.CounterVec
	hwEvictions *prometheus.CounterVec
	hwStatus    *prometheus.GaugeVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "network", Name: "resolves_total",
			Help: "Network validations by family and result.",
		}, []string{"family", "result"}),
		signers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keyring", Name: "signer_resolutions_total",
			Help: "Signer resolutions by family and outcome.",
		}, []string{"family", "outcome"}),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "keyring", Name: "unlocks_total",
			Help: "Unlock attempts by result.",
		}, []string{"result"}),
		hwAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hardware", Name: "connection_attempts_total",
			Help: "Hardware connection attempts per vendor.",
		}, []string{"vendor"}),
		hwRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hardware", Name: "connection_retries_total",
			Help: "Hardware connection retries per vendor.",
		}, []string{"vendor"}),
		hwFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hardware", Name: "connection_failures_total",
			Help: "Terminal hardware connection failures per vendor and reason.",
		}, []string{"vendor", "reason"}),
		hwEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hardware", Name: "idle_evictions_total",
			Help: "Connections closed by the idle monitor.",
		}, []string{"vendor"}),
		hwStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hardware", Name: "connection_status",
			Help: "1 for the current status of each vendor connection, 0 otherwise.",
		}, []string{"vendor", "status"}),
	}

	m.registry.MustRegister(
		m.resolves, m.signers, m.unlocks,
		m.hwAttempts, m.hwRetries, m.hwFailures, m.hwEvictions, m.hwStatus,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveResolve records a network validation outcome.
func (m *Metrics) ObserveResolve(family chain.Family, err error) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(family.String(), result(err)).Inc()
}

// ObserveSigner records a signer resolution outcome.
func (m *Metrics) ObserveSigner(family chain.Family, outcome string) {
	if m == nil {
		return
	}
	m.signers.WithLabelValues(family.String(), outcome).Inc()
}

// ObserveUnlock records an unlock attempt.
func (m *Metrics) ObserveUnlock(ok bool) {
	if m == nil {
		return
	}
	res := "ok"
	if !ok {
		res = "denied"
	}
	m.unlocks.WithLabelValues(res).Inc()
}

// ObserveAttempt records a hardware connection attempt.
func (m *Metrics) ObserveAttempt(vendor string) {
	if m == nil {
		return
	}
	m.hwAttempts.WithLabelValues(vendor).Inc()
}

// ObserveRetry records a hardware connection retry.
func (m *Metrics) ObserveRetry(vendor string) {
	if m == nil {
		return
	}
	m.hwRetries.WithLabelValues(vendor).Inc()
}

// ObserveFailure records a terminal hardware connection failure.
func (m *Metrics) ObserveFailure(vendor string, err error) {
	if m == nil {
		return
	}
	m.hwFailures.WithLabelValues(vendor, reason(err)).Inc()
}

// ObserveEviction records an idle eviction.
func (m *Metrics) ObserveEviction(vendor string) {
	if m == nil {
		return
	}
	m.hwEvictions.WithLabelValues(vendor).Inc()
}

// ObserveStatus sets the status gauge of a vendor; statuses lists every
// possible value so the previous one is reset.
func (m *Metrics) ObserveStatus(vendor, status string, statuses []string) {
	if m == nil {
		return
	}
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.hwStatus.WithLabelValues(vendor, s).Set(v)
	}
}

// Snapshot returns every series as "name{label=value,...}" mapped to its value.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)

			var v float64
			switch {
			case metric.GetCounter() != nil:
				v = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				v = metric.GetGauge().GetValue()
			default:
				continue
			}
			out[mf.GetName()+"{"+strings.Join(labels, ",")+"}"] = v
		}
	}
	return out, nil
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// reason maps an error to a low-cardinality label.
func reason(err error) string {
	var se *sigilerr.SigilError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &se):
		return strings.ToLower(se.Code)
	default:
		return "other"
	}
}
