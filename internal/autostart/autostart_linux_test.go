//go:build linux

package autostart

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, profile string, opts Options) (*linuxManager, *[]string) {
	t.Helper()
	var calls []string
	m := New(profile, opts).(*linuxManager)
	m.unitDir = t.TempDir()
	m.isRoot = func() bool { return true }
	m.run = func(name string, args ...string) error {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return nil
	}
	return m, &calls
}

func TestRender_NFSProfile(t *testing.T) {
	m, _ := testManager(t, "nfs", Options{
		ConfigPath:    "/etc/vitalis/exporter.yaml",
		WritablePaths: []string{"/var/www/html/nfs"},
	})

	unit, err := m.render("/usr/local/bin/vitalis-exporter")
	require.NoError(t, err)

	s := string(unit)
	assert.Contains(t, s, "ExecStart=/usr/local/bin/vitalis-exporter nfs --config /etc/vitalis/exporter.yaml\n")
	assert.Contains(t, s, "SyslogIdentifier=vitalis-exporter-nfs\n\n# Security hardening")
	assert.Contains(t, s, "PrivateTmp=true\nReadWritePaths=/var/www/html/nfs\n\n[Install]")
	assert.NotContains(t, s, "SupplementaryGroups")
}

func TestRender_DockerProfile(t *testing.T) {
	m, _ := testManager(t, "docker", Options{Groups: []string{"docker"}})

	unit, err := m.render("/opt/vitalis-exporter")
	require.NoError(t, err)

	s := string(unit)
	assert.Contains(t, s, "ExecStart=/opt/vitalis-exporter docker\n")
	assert.Contains(t, s, "SyslogIdentifier=vitalis-exporter-docker\nSupplementaryGroups=docker\n")
	assert.Contains(t, s, "PrivateTmp=true\n\n[Install]")
}

func TestInstallUninstall(t *testing.T) {
	m, calls := testManager(t, "multi", Options{})

	installed, err := m.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, m.Install("/opt/vitalis-exporter"))
	_, err = os.Stat(filepath.Join(m.unitDir, "vitalis-exporter-multi.service"))
	require.NoError(t, err)
	installed, err = m.IsInstalled()
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, []string{
		"systemctl daemon-reload",
		"systemctl enable vitalis-exporter-multi",
		"systemctl start vitalis-exporter-multi",
	}, *calls)

	require.NoError(t, m.Uninstall())
	installed, err = m.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)
	assert.NoError(t, m.Uninstall())
}

func TestInstall_RequiresRoot(t *testing.T) {
	m, calls := testManager(t, "nfs", Options{})
	m.isRoot = func() bool { return false }

	err := m.Install("/opt/vitalis-exporter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sudo /opt/vitalis-exporter install nfs")
	assert.Empty(t, *calls)
	assert.Error(t, m.Uninstall())
}

func TestInstall_SystemctlFailure(t *testing.T) {
	m, _ := testManager(t, "nfs", Options{})
	m.run = func(name string, args ...string) error {
		if len(args) > 0 && args[0] == "start" {
			return errors.New("exit status 1")
		}
		return nil
	}

	err := m.Install("/opt/vitalis-exporter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running systemctl start vitalis-exporter-nfs")
}
