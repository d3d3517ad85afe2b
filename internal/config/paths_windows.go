//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	return []string{
		filepath.Join(os.Getenv("LOCALAPPDATA"), "Vitalis", "exporter.yaml"),
		filepath.Join(os.Getenv("ProgramData"), "Vitalis", "exporter.yaml"),
	}
}
