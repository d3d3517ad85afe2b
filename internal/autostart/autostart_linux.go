//go:build linux

package autostart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const systemdDir = "/etc/systemd/system"

// unitTemplate is the systemd unit written during installation.
var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Vitalis {{.Profile}} exporter
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.ExecStart}}
Restart=always
RestartSec=10
StandardOutput=journal
StandardError=journal
SyslogIdentifier={{.Name}}
{{- range .Groups}}
SupplementaryGroups={{.}}
{{- end}}

# Security hardening
NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
PrivateTmp=true
{{- range .WritablePaths}}
ReadWritePaths={{.}}
{{- end}}

[Install]
WantedBy=multi-user.target
`))

// linuxManager implements Manager for Linux using systemd.
type linuxManager struct {
	profile string
	opts    Options
	unitDir string
	isRoot  func() bool
	run     func(name string, args ...string) error
}

// New returns a Manager that installs profile as a systemd service.
func New(profile string, opts Options) Manager {
	return &linuxManager{
		profile: profile,
		opts:    opts,
		unitDir: systemdDir,
		isRoot:  func() bool { return os.Geteuid() == 0 },
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// ServiceName returns the systemd service name.
func (l *linuxManager) ServiceName() string { return "vitalis-exporter-" + l.profile }

func (l *linuxManager) unitPath() string {
	return filepath.Join(l.unitDir, l.ServiceName()+".service")
}

// IsInstalled checks whether the systemd unit file exists.
func (l *linuxManager) IsInstalled() (bool, error) {
	_, err := os.Stat(l.unitPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking unit file: %w", err)
	}
	return true, nil
}

// render returns the unit file for execPath.
func (l *linuxManager) render(execPath string) ([]byte, error) {
	args := []string{execPath, l.profile}
	if l.opts.ConfigPath != "" {
		args = append(args, "--config", l.opts.ConfigPath)
	}

	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, map[string]any{
		"Profile":       l.profile,
		"Name":          l.ServiceName(),
		"ExecStart":     strings.Join(args, " "),
		"Groups":        l.opts.Groups,
		"WritablePaths": l.opts.WritablePaths,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering unit: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the systemd unit file, reloads the daemon, enables and starts the service.
func (l *linuxManager) Install(execPath string) error {
	if !l.isRoot() {
		return fmt.Errorf("installing %s requires root privileges\n\nRun with sudo:\n  sudo %s install %s",
			l.ServiceName(), execPath, l.profile)
	}

	unit, err := l.render(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.unitPath(), unit, 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}

	commands := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", l.ServiceName()},
		{"systemctl", "start", l.ServiceName()},
	}
	for _, args := range commands {
		if err := l.run(args[0], args[1:]...); err != nil {
			return fmt.Errorf("running %s: %w", strings.Join(args, " "), err)
		}
	}
	return nil
}

// Uninstall stops, disables, and removes the systemd service.
func (l *linuxManager) Uninstall() error {
	if !l.isRoot() {
		return fmt.Errorf("removing %s requires root privileges", l.ServiceName())
	}

	// Stop and disable fail when the service is already inactive.
	_ = l.run("systemctl", "stop", l.ServiceName())
	_ = l.run("systemctl", "disable", l.ServiceName())

	if err := os.Remove(l.unitPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing unit file: %w", err)
	}

	_ = l.run("systemctl", "daemon-reload")
	return nil
}
