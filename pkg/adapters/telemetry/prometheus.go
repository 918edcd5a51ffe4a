// Package telemetry provides ports.Telemetry sinks: Prometheus counters for
// the serve command and an in-memory recorder for decode summaries.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/remotevideo/pkg/ports"
)

// Prometheus exports telemetry events on its own registry.
type Prometheus struct {
	reg    *prometheus.Registry
	events *prometheus.CounterVec
	values *prometheus.HistogramVec
}

var _ ports.Telemetry = (*Prometheus)(nil)

// NewPrometheus creates the collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Prometheus{
		reg: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remotevideo_decoder_events_total",
			Help: "Total number of decoder telemetry events by name",
		}, []string{"event"}),
		values: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remotevideo_decoder_event_value",
			Help:    "Values reported with decoder telemetry events",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"event"}),
	}
}

// RecordEvent counts the event and observes its value.
func (p *Prometheus) RecordEvent(name string, value int) {
	if name == "" {
		name = "unknown"
	}
	p.events.WithLabelValues(name).Inc()
	p.values.WithLabelValues(name).Observe(float64(value))
}

// Registry returns the registry the collectors live in.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
