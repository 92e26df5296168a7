package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Captain-Coder/dispersy/pkg/tracker"
)

func TestLoadTrackerConfig_EmptyPathIsNoop(t *testing.T) {
	fc, err := LoadTrackerConfig("")
	if err != nil {
		t.Fatalf("LoadTrackerConfig(\"\"): %v", err)
	}
	if fc != (TrackerFileConfig{}) {
		t.Fatalf("expected zero value, got %+v", fc)
	}
}

func TestLoadTrackerConfig_MissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	fc, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatalf("LoadTrackerConfig: %v", err)
	}
	if fc != (TrackerFileConfig{}) {
		t.Fatalf("expected zero value for a missing file, got %+v", fc)
	}
}

func TestLoadTrackerConfig_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	content := "state_dir: /var/lib/dispersy-tracker\n" +
		"ip: 0.0.0.0\n" +
		"port: 6421\n" +
		"silent: true\n" +
		"crypto: NoVerifyCrypto\n" +
		"bootstrap_seed_file: /etc/dispersy-tracker/seeds.txt\n" +
		"lan_discovery: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fc, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatalf("LoadTrackerConfig: %v", err)
	}
	if fc.StateDir != "/var/lib/dispersy-tracker" || fc.Port != 6421 || !fc.Silent || !fc.LANDiscovery {
		t.Fatalf("unexpected parse result: %+v", fc)
	}
}

func TestLoadTrackerConfig_RejectsTooNewVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	content := "version: 999\nport: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadTrackerConfig(path)
	if err == nil {
		t.Fatal("expected an error for a config version newer than supported")
	}
}

func TestLoadTrackerConfig_RejectsPermissiveFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	if err := os.WriteFile(path, []byte("port: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadTrackerConfig(path); err == nil {
		t.Fatal("expected an error for a world-readable config file")
	}
}

func TestTrackerFileConfig_ApplyToOverlaysOnlyNonZeroFields(t *testing.T) {
	base := tracker.DefaultConfig()
	fc := TrackerFileConfig{Port: 9999}

	merged := fc.ApplyTo(base)
	if merged.Port != 9999 {
		t.Fatalf("expected overlaid port, got %d", merged.Port)
	}
	if merged.StateDir != base.StateDir {
		t.Fatalf("expected untouched field preserved, got %q want %q", merged.StateDir, base.StateDir)
	}
}
