package collector

import (
	"context"
	"errors"
	"io/fs"

	"github.com/prometheus/procfs/nfs"

	"github.com/vitalis-app/exporter/internal/models"
)

var nfsOpsDescs = []models.Desc{
	{Name: "nfs_read_ops_total", Help: "Total NFS read operations", Kind: models.Counter},
	{Name: "nfs_write_ops_total", Help: "Total NFS write operations", Kind: models.Counter},
}

// NFSOpsCollector reports NFSv3 client read/write operation counters from
// /proc/net/rpc/nfs.
type NFSOpsCollector struct {
	procPath string
}

// NewNFSOpsCollector creates a collector reading from the proc filesystem
// mounted at procPath ("/proc" when empty).
func NewNFSOpsCollector(procPath string) *NFSOpsCollector {
	if procPath == "" {
		procPath = "/proc"
	}
	return &NFSOpsCollector{procPath: procPath}
}

func (c *NFSOpsCollector) Name() string            { return "nfsops" }
func (c *NFSOpsCollector) Describe() []models.Desc { return nfsOpsDescs }
func (c *NFSOpsCollector) IsAvailable() bool       { return true }

// Collect reads the client RPC statistics. A host without NFS client stats
// reports zero operations.
func (c *NFSOpsCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	fsys, err := nfs.NewFS(c.procPath)
	if err != nil {
		return nil, WrapError(KindNotConfigured, "open proc filesystem", err)
	}

	var reads, writes float64
	stats, err := fsys.ClientRPCStats()
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, WrapError(KindParse, "read nfs client stats", err)
	default:
		reads = float64(stats.V3Stats.Read)
		writes = float64(stats.V3Stats.Write)
	}

	return []models.Sample{
		models.NewSample("nfs_read_ops_total", reads, nil),
		models.NewSample("nfs_write_ops_total", writes, nil),
	}, ctx.Err()
}
