// Package metrics exposes Prometheus collectors for controller sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencontroller/backend/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "opencontroller"

// Drop reasons reported by InputDropped.
const (
	DropUnassigned  = "unassigned"
	DropNoDevice    = "no_device"
	DropUnknown     = "unknown_input"
	DropRateLimited = "rate_limited"
	DropDriverError = "driver_error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	slotOccupancy  *prometheus.GaugeVec
	clients        *prometheus.GaugeVec
	inputsTotal    *prometheus.CounterVec
	inputsDropped  *prometheus.CounterVec
	driverFailures prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		slotOccupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "slot_occupancy",
			Help:      "Number of clients assigned to each controller slot",
		}, []string{"slot"}),

		clients: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "clients",
			Help:      "Connected websocket clients by role",
		}, []string{"role"}),

		inputsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inputs_total",
			Help:      "Input events applied to a device",
		}, []string{"kind"}),

		inputsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inputs_dropped_total",
			Help:      "Input events dropped before reaching a device",
		}, []string{"reason"}),

		driverFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "driver_failures_total",
			Help:      "Device creation failures",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SetOccupancy publishes per-slot client counts.
func (m *Metrics) SetOccupancy(occ model.Occupancy) {
	if m == nil {
		return
	}
	for _, slot := range model.AllSlots() {
		m.slotOccupancy.WithLabelValues(slot.String()).Set(float64(occ[slot]))
	}
}

// SetClients publishes the number of connected clients for a role.
func (m *Metrics) SetClients(role string, n int) {
	if m == nil {
		return
	}
	m.clients.WithLabelValues(role).Set(float64(n))
}

// InputApplied counts an input that reached a device.
func (m *Metrics) InputApplied(kind model.InputKind) {
	if m == nil {
		return
	}
	m.inputsTotal.WithLabelValues(string(kind)).Inc()
}

// InputDropped counts an input that was discarded.
func (m *Metrics) InputDropped(reason string) {
	if m == nil {
		return
	}
	m.inputsDropped.WithLabelValues(reason).Inc()
}

// DriverFailure counts a failed device creation.
func (m *Metrics) DriverFailure() {
	if m == nil {
		return
	}
	m.driverFailures.Inc()
}
