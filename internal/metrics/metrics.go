// Package metrics publishes page store statistics as Prometheus
// metrics for processes that scrape the default registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/grebedb/pkg/page"
)

// Metrics holds the gauges mirrored from page.Counters.
type Metrics struct {
	PagesRead    prometheus.Gauge
	PagesWritten prometheus.Gauge
	CacheHits    prometheus.Gauge
	CacheMisses  prometheus.Gauge
	Evictions    prometheus.Gauge
	Flushes      prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics set, registering it with
// the default Prometheus registry on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates and registers the metrics set.
func New() *Metrics {
	return &Metrics{
		PagesRead: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_pages_read_total",
			Help: "Total number of pages read from disk",
		}),
		PagesWritten: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_pages_written_total",
			Help: "Total number of page images written to disk",
		}),
		CacheHits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_page_cache_hits_total",
			Help: "Total number of page cache hits",
		}),
		CacheMisses: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_page_cache_misses_total",
			Help: "Total number of page cache misses",
		}),
		Evictions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_page_cache_evictions_total",
			Help: "Total number of page cache evictions",
		}),
		Flushes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "grebedb_flushes_total",
			Help: "Total number of committed flushes",
		}),
	}
}

// Publish mirrors a counters snapshot into the gauges.
func (m *Metrics) Publish(c page.Counters) {
	m.PagesRead.Set(float64(c.Reads))
	m.PagesWritten.Set(float64(c.Writes))
	m.CacheHits.Set(float64(c.CacheHits))
	m.CacheMisses.Set(float64(c.CacheMisses))
	m.Evictions.Set(float64(c.Evictions))
	m.Flushes.Set(float64(c.Flushes))
}
