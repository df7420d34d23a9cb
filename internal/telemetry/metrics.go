// Package telemetry exposes dispatch and grayscale activity as Prometheus
// metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grayd"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds the dispatcher and feature metrics.
type Metrics struct {
	EventsObserved    *prometheus.CounterVec
	EventsDispatched  *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	FeatureFailures   *prometheus.CounterVec
	DarkenTransitions *prometheus.CounterVec
	ServiceState      *prometheus.GaugeVec
	HardwareKeys      *prometheus.CounterVec
	ScrollViews       prometheus.Gauge
}

// NewMetrics creates and registers the metrics on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_observed_total",
			Help:      "Events received by the telemetry feature, by kind.",
		}, []string{"kind"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Events fanned out to features, by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events filtered before dispatch, by kind and reason.",
		}, []string{"kind", "reason"}),
		FeatureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_failures_total",
			Help:      "Recovered feature callback failures, by feature and operation.",
		}, []string{"feature", "op"}),
		DarkenTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "darken_transitions_total",
			Help:      "Overlay transitions, by feature and direction.",
		}, []string{"feature", "direction"}),
		ServiceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "1 for the current dispatcher state, 0 otherwise.",
		}, []string{"state"}),
		HardwareKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_keys_total",
			Help:      "Hardware key events offered to listeners, by key code.",
		}, []string{"code"}),
		ScrollViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scroll_views_seen",
			Help:      "Distinct scroll views observed since start.",
		}),
	}

	reg.MustRegister(
		m.EventsObserved,
		m.EventsDispatched,
		m.EventsDropped,
		m.FeatureFailures,
		m.DarkenTransitions,
		m.ServiceState,
		m.HardwareKeys,
		m.ScrollViews,
	)
	return m
}
