package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/vitalis-app/exporter/internal/models"
)

var hostDescs = []models.Desc{
	{Name: "host_cpu_usage_percent", Help: "Host CPU usage percentage since the previous collection", Kind: models.Gauge},
	{Name: "host_memory_used_bytes", Help: "Host memory in use in bytes", Kind: models.Gauge},
	{Name: "host_memory_total_bytes", Help: "Host memory size in bytes", Kind: models.Gauge},
	{Name: "host_uptime_seconds", Help: "Seconds since the host booted", Kind: models.Gauge},
	{Name: "host_load1", Help: "1 minute load average", Kind: models.Gauge},
	{Name: "host_load5", Help: "5 minute load average", Kind: models.Gauge},
	{Name: "host_load15", Help: "15 minute load average", Kind: models.Gauge},
	{Name: "host_network_receive_bytes_total", Help: "Bytes received on all interfaces", Kind: models.Counter},
	{Name: "host_network_transmit_bytes_total", Help: "Bytes transmitted on all interfaces", Kind: models.Counter},
}

// HostCollector reports basic resource usage of the machine the exporter
// runs on. Uses gopsutil for cross-platform metrics.
type HostCollector struct{}

// NewHostCollector creates a new host collector.
func NewHostCollector() *HostCollector {
	return &HostCollector{}
}

// Name returns the collector identifier.
func (c *HostCollector) Name() string { return "host" }

// Describe returns the host_* families.
func (c *HostCollector) Describe() []models.Desc { return hostDescs }

// IsAvailable returns true; gopsutil covers every supported platform.
func (c *HostCollector) IsAvailable() bool { return true }

// Collect gathers CPU, memory, uptime, load and network counters. CPU usage
// is measured against the previous call so it never blocks. Memory is
// required; the other readings are skipped when the platform lacks them.
func (c *HostCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, WrapError(KindUnreachable, "read memory stats", err)
	}
	samples := []models.Sample{
		models.NewSample("host_memory_used_bytes", float64(v.Used), nil),
		models.NewSample("host_memory_total_bytes", float64(v.Total), nil),
	}

	if overall, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(overall) > 0 {
		samples = append(samples, models.NewSample("host_cpu_usage_percent", overall[0], nil))
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		samples = append(samples, models.NewSample("host_uptime_seconds", float64(uptime), nil))
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		samples = append(samples,
			models.NewSample("host_load1", avg.Load1, nil),
			models.NewSample("host_load5", avg.Load5, nil),
			models.NewSample("host_load15", avg.Load15, nil),
		)
	}
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		samples = append(samples,
			models.NewSample("host_network_receive_bytes_total", float64(counters[0].BytesRecv), nil),
			models.NewSample("host_network_transmit_bytes_total", float64(counters[0].BytesSent), nil),
		)
	}
	return samples, nil
}
