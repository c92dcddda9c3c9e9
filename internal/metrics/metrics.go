// Package metrics exposes prometheus instrumentation for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SweepsTotal      prometheus.Counter
	SweepTenantFails prometheus.Counter
	GlancePushes     prometheus.Counter
	WebhooksTotal    *prometheus.CounterVec
	CardsBuilt       prometheus.Counter
	SweepDuration    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sauce_broadcast_sweeps_total",
			Help: "Completed broadcast sweeps across all tenants.",
		}),
		SweepTenantFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "sauce_broadcast_tenant_failures_total",
			Help: "Per-tenant failures during broadcast sweeps (unconfigured tenants excluded).",
		}),
		GlancePushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sauce_glance_pushes_total",
			Help: "Glance payloads pushed to rooms.",
		}),
		WebhooksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sauce_webhooks_received_total",
			Help: "Inbound webhooks by kind.",
		}, []string{"kind"}),
		CardsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "sauce_cards_built_total",
			Help: "Notification cards built from job links.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sauce_broadcast_sweep_duration_seconds",
			Help:    "Wall time of one broadcast sweep.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
