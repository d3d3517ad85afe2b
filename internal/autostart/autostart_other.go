//go:build !linux

package autostart

type unsupportedManager struct {
	profile string
}

// New returns a Manager whose operations fail with ErrUnsupported.
func New(profile string, _ Options) Manager {
	return unsupportedManager{profile: profile}
}

func (m unsupportedManager) ServiceName() string        { return "vitalis-exporter-" + m.profile }
func (m unsupportedManager) IsInstalled() (bool, error) { return false, ErrUnsupported }
func (m unsupportedManager) Install(string) error       { return ErrUnsupported }
func (m unsupportedManager) Uninstall() error           { return ErrUnsupported }
