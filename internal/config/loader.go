package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// checkConfigFilePermissions rejects a config file with overly permissive
// permissions. Config files may contain the tracker's state directory
// layout and bootstrap seed list. Returns an error whenever any group or
// other permission bit is set; a file it cannot stat passes.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// DefaultConfigDir returns the default tracker config directory
// (~/.config/dispersy-tracker).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "dispersy-tracker"), nil
}
