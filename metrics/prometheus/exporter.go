package prometheus

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter registers the engine's metrics on a registry and serves
// them over HTTP.
type Exporter struct {
	metrics  *Metrics
	registry *prometheus.Registry
}

// NewExporter builds an exporter. A nil registry gets a fresh one.
func NewExporter(registry *prometheus.Registry) (*Exporter, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := New()
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return &Exporter{metrics: m, registry: registry}, nil
}

// Metrics returns the instrument set backing this exporter.
func (e *Exporter) Metrics() *Metrics { return e.metrics }

// Handler returns the scrape endpoint handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
