package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitalis-app/exporter/internal/collector"
	"github.com/vitalis-app/exporter/internal/config"
	"github.com/vitalis-app/exporter/internal/telemetry"
)

func names(r *collector.Registry) []string {
	var out []string
	for _, c := range r.Collectors() {
		out = append(out, c.Name())
	}
	return out
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBuildRegistry_NFSProfile(t *testing.T) {
	cfg := config.DefaultConfig(config.ProfileNFS)

	r, err := buildRegistry(cfg, telemetry.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "connectivity", "nfsops", "self"}, names(r))
}

func TestBuildRegistry_MultiProfileWithHost(t *testing.T) {
	cfg := config.DefaultConfig(config.ProfileMulti)
	cfg.Collectors.Host.Enabled = true

	r, err := buildRegistry(cfg, telemetry.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "connectivity", "haproxy", "database", "host", "self"}, names(r))
	assert.NoError(t, r.Close())
}

func TestBuildRegistry_BadDSN(t *testing.T) {
	cfg := config.DefaultConfig(config.ProfileMulti)
	cfg.Collectors.Database.DSN = "root@tcp(mysql:3306"

	_, err := buildRegistry(cfg, telemetry.New(), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestExporter_ServesSnapshotAfterCycle(t *testing.T) {
	cfg := config.DefaultConfig(config.ProfileDocker)
	cfg.Collectors.Docker.Enabled = false

	e, err := newExporter(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	h := e.server.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ready").Code)
	before := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, before.Code)
	assert.Contains(t, before.Body.String(), "# TYPE exporter_collection_cycles_total counter\n")
	assert.NotContains(t, before.Body.String(), "\nexporter_collection_cycles_total ")

	require.NoError(t, e.scheduler.RunOnce(context.Background()))

	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	after := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, after.Code)
	assert.Contains(t, after.Body.String(), "\nexporter_collection_cycles_total 0.0\n")

	missing := get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Empty(t, missing.Body.String())
}

func TestNewExporter_LogsEnabledCollectors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := config.DefaultConfig(config.ProfileNFS)

	_, err := newExporter(cfg, zap.New(core))
	require.NoError(t, err)

	entries := logs.FilterMessage("Collectors enabled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"filesystem", "connectivity", "nfsops", "self"}, entries[0].ContextMap()["collectors"])
}

func TestWebhookServer_Routes(t *testing.T) {
	cfg := config.DefaultConfig(config.ProfileWebhook)
	h := newWebhookServer(cfg, zaptest.NewLogger(t)).Handler()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"status":"firing","alerts":[{"status":"firing","labels":{"alertname":"NFSDown"}}]}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/webhook").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestConfigCommand_WritesProfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nfs.yaml")
	cfgFile := filepath.Join(t.TempDir(), "exporter.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("collectors:\n  filesystem:\n    path: /mnt/share\n"), 0600))

	err := newApp().Run(context.Background(),
		[]string{"vitalis-exporter", "config", "--config", cfgFile, "--port", "9999", "--output", out, "nfs"})
	require.NoError(t, err)

	loaded, err := config.LoadLayered(config.ProfileNFS, config.CLIOverrides{}, nil, out)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, "/mnt/share", loaded.Collectors.Filesystem.Path)
}

func TestConfigCommand_RejectsUnknownProfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.yaml")
	err := newApp().Run(context.Background(),
		[]string{"vitalis-exporter", "config", "--config", "", "--output", out, "kafka"})
	assert.Error(t, err)
}

func TestAutostartOptions(t *testing.T) {
	nfs := config.DefaultConfig(config.ProfileNFS)
	nfs.Logging.File = "/var/log/vitalis/nfs.log"
	opts := autostartOptions(nfs, "/etc/vitalis/exporter.yaml")
	assert.Equal(t, "/etc/vitalis/exporter.yaml", opts.ConfigPath)
	assert.Equal(t, []string{"/var/www/html/nfs", "/var/log/vitalis"}, opts.WritablePaths)
	assert.Empty(t, opts.Groups)

	docker := autostartOptions(config.DefaultConfig(config.ProfileDocker), "/etc/vitalis/exporter.yaml")
	assert.Equal(t, []string{"docker"}, docker.Groups)
	assert.Empty(t, docker.WritablePaths)
}

func TestUninstallCommand_RejectsUnknownProfile(t *testing.T) {
	err := newApp().Run(context.Background(), []string{"vitalis-exporter", "uninstall", "kafka"})
	assert.ErrorContains(t, err, `unknown profile "kafka"`)
}
