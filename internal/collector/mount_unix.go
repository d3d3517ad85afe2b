//go:build !windows

package collector

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// isMountPoint reports whether path sits on a different device than its
// parent directory.
func isMountPoint(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(filepath.Dir(path), &parent); err != nil {
		return false, err
	}
	if st.Dev != parent.Dev {
		return true, nil
	}
	// "/" is its own parent
	return st.Ino == parent.Ino, nil
}
