package collector

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/vitalis-app/exporter/internal/models"
)

const (
	// DefaultProbePayload is the size of the latency probe file.
	DefaultProbePayload = 4000

	probeFileName = ".nfs_test"
)

var filesystemDescs = []models.Desc{
	{Name: "nfs_mount_status", Help: "NFS mount status (1=mounted, 0=not mounted)", Kind: models.Gauge},
	{Name: "nfs_read_latency_ms", Help: "NFS read latency in milliseconds", Kind: models.Gauge},
	{Name: "nfs_write_latency_ms", Help: "NFS write latency in milliseconds", Kind: models.Gauge},
	{Name: "nfs_probe_success", Help: "Whether the last read/write probe succeeded (1=yes, 0=no)", Kind: models.Gauge},
	{Name: "nfs_mount_size_bytes", Help: "Total size of the mounted filesystem in bytes", Kind: models.Gauge},
	{Name: "nfs_mount_used_bytes", Help: "Used bytes on the mounted filesystem", Kind: models.Gauge},
}

// PartitionLister returns the mounted partitions. It is disk.PartitionsWithContext
// in production.
type PartitionLister func(ctx context.Context) ([]disk.PartitionStat, error)

// FilesystemCollector checks that a network mount is present and measures
// write and read round-trip latency with a small probe file.
type FilesystemCollector struct {
	path       string
	server     string
	payload    []byte
	partitions PartitionLister
	usage      func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewFilesystemCollector creates a collector for the mount at path. When
// server is set the mount's device must reference it.
func NewFilesystemCollector(path, server string, payloadSize int) *FilesystemCollector {
	if payloadSize <= 0 {
		payloadSize = DefaultProbePayload
	}
	return &FilesystemCollector{
		path:    filepath.Clean(path),
		server:  server,
		payload: []byte(strings.Repeat("test", payloadSize/4+1)[:payloadSize]),
		partitions: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, true)
		},
		usage: disk.UsageWithContext,
	}
}

// Name returns the collector identifier.
func (c *FilesystemCollector) Name() string { return "filesystem" }

// Describe returns the nfs mount families.
func (c *FilesystemCollector) Describe() []models.Desc { return filesystemDescs }

// IsAvailable returns true; a missing mount is reported as a metric.
func (c *FilesystemCollector) IsAvailable() bool { return true }

// Collect reports mount status and, when mounted, probe latencies and usage.
// A missing path is not an error: it yields status 0 and zero latencies.
func (c *FilesystemCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	mounted := false
	if _, err := os.Stat(c.path); err == nil {
		mounted = c.isMounted(ctx)
	}

	var readMs, writeMs, success float64
	if mounted {
		if w, r, err := c.probe(); err == nil {
			writeMs, readMs, success = w, r, 1
		}
	}

	samples := []models.Sample{
		models.NewSample("nfs_mount_status", boolValue(mounted), nil),
		models.NewSample("nfs_read_latency_ms", readMs, nil),
		models.NewSample("nfs_write_latency_ms", writeMs, nil),
	}
	if !mounted {
		return samples, nil
	}
	samples = append(samples, models.NewSample("nfs_probe_success", success, nil))
	if u, err := c.usage(ctx, c.path); err == nil {
		samples = append(samples,
			models.NewSample("nfs_mount_size_bytes", float64(u.Total), nil),
			models.NewSample("nfs_mount_used_bytes", float64(u.Used), nil),
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// isMounted looks for the path in the partition table and falls back to a
// device comparison when the table cannot be read.
func (c *FilesystemCollector) isMounted(ctx context.Context) bool {
	parts, err := c.partitions(ctx)
	if err != nil {
		ok, err := isMountPoint(c.path)
		return err == nil && ok
	}
	for _, p := range parts {
		if filepath.Clean(p.Mountpoint) != c.path {
			continue
		}
		if c.server == "" || strings.Contains(p.Device, c.server) {
			return true
		}
	}
	return false
}

// probe writes the payload, reads it back and removes the file. Latencies are
// in milliseconds.
func (c *FilesystemCollector) probe() (writeMs, readMs float64, err error) {
	name := filepath.Join(c.path, probeFileName)
	defer os.Remove(name)

	start := time.Now()
	if err := writeSynced(name, c.payload); err != nil {
		return 0, 0, err
	}
	writeMs = millis(time.Since(start))

	start = time.Now()
	f, err := os.Open(name)
	if err != nil {
		return 0, 0, err
	}
	n, err := io.Copy(io.Discard, f)
	f.Close()
	if err != nil {
		return 0, 0, err
	}
	if n != int64(len(c.payload)) {
		return 0, 0, errors.New("short read from probe file")
	}
	readMs = millis(time.Since(start))

	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, 0, err
	}
	return writeMs, readMs, nil
}

func writeSynced(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
