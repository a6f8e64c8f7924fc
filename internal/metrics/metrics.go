// v1
// internal/metrics/metrics.go

// Package metrics registers the Prometheus collectors served on the
// status server's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reason labels recorded on sensor_delivery_failures_total.
const (
	ReasonConnect = "connect"
	ReasonSend    = "send"
	ReasonEncode  = "encode"
)

// Metrics bundles every collector the simulator maintains. Each
// instance owns a dedicated registry so tests never trip over global
// registration conflicts.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsGenerated *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	Connected         *prometheus.GaugeVec
}

// New constructs and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReadingsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_readings_generated_total",
			Help: "Readings produced per site.",
		}, []string{"site"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_deliveries_total",
			Help: "Payloads delivered per site.",
		}, []string{"site"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_delivery_failures_total",
			Help: "Abandoned ticks per site and failure reason.",
		}, []string{"site", "reason"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_reconnects_total",
			Help: "Reconnect attempts per site.",
		}, []string{"site"}),
		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_channel_connected",
			Help: "Whether the site's delivery channel currently holds a connection.",
		}, []string{"site"}),
	}
	m.registry.MustRegister(
		m.ReadingsGenerated,
		m.Deliveries,
		m.DeliveryFailures,
		m.Reconnects,
		m.Connected,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
