// Package metrics exposes wiring counters for prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jackson"

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connects      *prometheus.CounterVec
	wiring        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	restarts      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "requests_total",
			Help:      "Connect requests handled by the server, by role and result kind.",
		}, []string{"role", "result"}),
		wiring: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "wiring_tasks_total",
			Help:      "Wiring tasks run by the client, by role and result.",
		}, []string{"role", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "port_registrations_total",
			Help:      "Bridge port registrations seen, by outcome.",
		}, []string{"outcome"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "process_restarts_total",
			Help:      "External process restarts after a clean exit.",
		}, []string{"process"}),
	}
	m.registry.MustRegister(m.connects, m.wiring, m.registrations, m.restarts)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectRequest counts one server-side connect request. result is
// ResultOK or the structured error kind.
func (m *Metrics) ConnectRequest(role, result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(role, result).Inc()
}

func (m *Metrics) WiringTask(role, result string) {
	if m == nil {
		return
	}
	m.wiring.WithLabelValues(role, result).Inc()
}

// Registration counts a bridge port registration: queued or dropped.
func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Restart(process string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(process).Inc()
}
