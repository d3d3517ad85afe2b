//go:build windows

package collector

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// isMountPoint reports whether path is the root of a volume.
func isMountPoint(path string) (bool, error) {
	p, err := windows.UTF16PtrFromString(filepath.Clean(path) + `\`)
	if err != nil {
		return false, err
	}
	buf := make([]uint16, windows.MAX_PATH)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		return false, err
	}
	return filepath.Clean(windows.UTF16ToString(buf)) == filepath.Clean(path), nil
}
