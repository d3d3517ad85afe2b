// Package telemetry instruments the exporter itself on a private prometheus
// registry. The self collector turns these metrics into snapshot samples.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vitalis-app/exporter/internal/models"
)

// Telemetry holds the exporter's self-instrumentation. A nil *Telemetry is
// valid and records nothing.
type Telemetry struct {
	registry *prometheus.Registry

	collectorUp       *prometheus.GaugeVec
	collectorDuration *prometheus.GaugeVec
	collectorFailures *prometheus.CounterVec
	cycles            prometheus.Counter
	faults            prometheus.Counter
	lastCollection    prometheus.Gauge
	scrapes           *prometheus.CounterVec
}

var descs = []models.Desc{
	{Name: "exporter_collector_up", Help: "Whether the collector succeeded in the last cycle (1=yes, 0=no)", Kind: models.Gauge},
	{Name: "exporter_collector_duration_seconds", Help: "Duration of the collector's last run in seconds", Kind: models.Gauge},
	{Name: "exporter_collector_failures_total", Help: "Collector failures by kind", Kind: models.Counter},
	{Name: "exporter_collection_cycles_total", Help: "Completed collection cycles", Kind: models.Counter},
	{Name: "exporter_collection_faults_total", Help: "Collection cycles aborted by an internal fault", Kind: models.Counter},
	{Name: "exporter_last_collection_timestamp_seconds", Help: "Unix time of the last published snapshot", Kind: models.Gauge},
	{Name: "exporter_scrapes_total", Help: "Scrapes of the metrics endpoint by response format", Kind: models.Counter},
	{Name: "process_cpu_seconds_total", Help: "Total user and system CPU time spent in seconds", Kind: models.Counter},
	{Name: "process_resident_memory_bytes", Help: "Resident memory size in bytes", Kind: models.Gauge},
	{Name: "process_open_fds", Help: "Number of open file descriptors", Kind: models.Gauge},
	{Name: "process_start_time_seconds", Help: "Start time of the process since unix epoch in seconds", Kind: models.Gauge},
}

// New creates the instrumentation and registers it, together with a process
// collector, on a fresh registry.
func New() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		collectorUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exporter_collector_up",
			Help: descs[0].Help,
		}, []string{"collector"}),
		collectorDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exporter_collector_duration_seconds",
			Help: descs[1].Help,
		}, []string{"collector"}),
		collectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_collector_failures_total",
			Help: descs[2].Help,
		}, []string{"collector", "kind"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exporter_collection_cycles_total",
			Help: descs[3].Help,
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exporter_collection_faults_total",
			Help: descs[4].Help,
		}),
		lastCollection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exporter_last_collection_timestamp_seconds",
			Help: descs[5].Help,
		}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_scrapes_total",
			Help: descs[6].Help,
		}, []string{"format"}),
	}
	t.registry.MustRegister(
		t.collectorUp,
		t.collectorDuration,
		t.collectorFailures,
		t.cycles,
		t.faults,
		t.lastCollection,
		t.scrapes,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return t
}

// Gatherer returns the registry backing the instrumentation.
func (t *Telemetry) Gatherer() prometheus.Gatherer {
	if t == nil {
		return prometheus.Gatherers{}
	}
	return t.registry
}

// Descs returns the families exposed through the self collector.
func Descs() []models.Desc {
	out := make([]models.Desc, len(descs))
	copy(out, descs)
	return out
}

// ObserveCollector records one collector run. kind is empty on success.
func (t *Telemetry) ObserveCollector(name string, d time.Duration, kind string) {
	if t == nil {
		return
	}
	t.collectorDuration.WithLabelValues(name).Set(d.Seconds())
	if kind == "" {
		t.collectorUp.WithLabelValues(name).Set(1)
		return
	}
	t.collectorUp.WithLabelValues(name).Set(0)
	t.collectorFailures.WithLabelValues(name, kind).Inc()
}

// ObserveCycle records a published snapshot.
func (t *Telemetry) ObserveCycle(published time.Time) {
	if t == nil {
		return
	}
	t.cycles.Inc()
	t.lastCollection.Set(float64(published.UnixNano()) / 1e9)
}

// ObserveFault records a cycle aborted by an internal fault.
func (t *Telemetry) ObserveFault() {
	if t == nil {
		return
	}
	t.faults.Inc()
}

// ObserveScrape records a scrape answered in format ("text" or "protobuf").
func (t *Telemetry) ObserveScrape(format string) {
	if t == nil {
		return
	}
	t.scrapes.WithLabelValues(format).Inc()
}
