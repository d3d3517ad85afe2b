package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nfsClientStats = `net 70 70 69 45
rpc 1218785755 374636 1218815394
proc3 22 0 1061909262 48906 4077635 117661341 5 29391916 2570425 2993289 590 0 0 7815 15 1130 0 3983 92385 13332 2 1 23729
`

func writeProcFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNFSOpsCollector(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "net/rpc/nfs", nfsClientStats)

	samples, err := NewNFSOpsCollector(root).Collect(context.Background())
	require.NoError(t, err)

	got := sampleMap(samples)
	assert.Equal(t, 29391916.0, got["nfs_read_ops_total"])
	assert.Equal(t, 2570425.0, got["nfs_write_ops_total"])
}

func TestNFSOpsCollector_NoClientStats(t *testing.T) {
	samples, err := NewNFSOpsCollector(t.TempDir()).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"nfs_read_ops_total": 0, "nfs_write_ops_total": 0}, sampleMap(samples))
}

func TestNFSOpsCollector_Malformed(t *testing.T) {
	root := t.TempDir()
	writeProcFile(t, root, "net/rpc/nfs", "proc3 3 1 2\n")

	_, err := NewNFSOpsCollector(root).Collect(context.Background())
	assert.Equal(t, KindParse, KindOf(err))
}

func TestNFSOpsCollector_MissingProc(t *testing.T) {
	_, err := NewNFSOpsCollector(filepath.Join(t.TempDir(), "nope")).Collect(context.Background())
	assert.Equal(t, KindNotConfigured, KindOf(err))
}
