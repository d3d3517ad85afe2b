// Package autostart installs an exporter profile as a boot-time service.
package autostart

import "errors"

// ErrUnsupported is returned on platforms without an autostart backend.
var ErrUnsupported = errors.New("autostart is only supported with systemd")

// Manager provides platform-specific autostart installation.
type Manager interface {
	IsInstalled() (bool, error)
	Install(execPath string) error
	Uninstall() error
	ServiceName() string
}

// Options adjusts the generated service for one profile.
type Options struct {
	// ConfigPath is passed to the exporter with --config when set.
	ConfigPath string
	// WritablePaths are exempted from the read-only filesystem sandbox,
	// e.g. the mount the latency probe writes to.
	WritablePaths []string
	// Groups are supplementary groups, e.g. "docker" for socket access.
	Groups []string
}
