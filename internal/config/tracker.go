package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Captain-Coder/dispersy/pkg/tracker"
)

// TrackerFileConfig is the on-disk shape of the tracker's optional YAML
// config file. StateDir through LogIdentifier mirror tracker.Config;
// BootstrapSeedFile and LANDiscovery have no tracker.Config counterpart
// and are read by cmd/tracker directly. cmd/tracker layers "built-in
// defaults < config file < CLI flags", so every field
// here is omitempty and a zero value just means "let a lower layer
// decide".
type TrackerFileConfig struct {
	Version       int    `yaml:"version,omitempty"`
	StateDir      string `yaml:"state_dir,omitempty"`
	IP            string `yaml:"ip,omitempty"`
	Port          int    `yaml:"port,omitempty"`
	Silent        bool   `yaml:"silent,omitempty"`
	Crypto        string `yaml:"crypto,omitempty"`
	LogIdentifier string `yaml:"log_identifier,omitempty"`

	BootstrapSeedFile string `yaml:"bootstrap_seed_file,omitempty"`
	LANDiscovery      bool   `yaml:"lan_discovery,omitempty"`
}

// LoadTrackerConfig reads a tracker config file from path. A missing
// path is not an error: it returns a zero TrackerFileConfig so callers
// can fall back entirely to tracker.DefaultConfig() and CLI flags.
func LoadTrackerConfig(path string) (TrackerFileConfig, error) {
	var fc TrackerFileConfig
	if path == "" {
		return fc, nil
	}
	if err := checkConfigFilePermissions(path); err != nil {
		return fc, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("failed to read tracker config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse tracker config YAML: %w", err)
	}
	if fc.Version > CurrentConfigVersion {
		return fc, fmt.Errorf("%w: file declares version %d, binary supports up to %d", ErrConfigVersionTooNew, fc.Version, CurrentConfigVersion)
	}
	return fc, nil
}

// ApplyTo overlays fc's non-zero tracker.Config fields onto cfg, returning
// the merged result. A zero-valued field in fc leaves cfg's existing value
// alone; Version, BootstrapSeedFile and LANDiscovery are not applied.
func (fc TrackerFileConfig) ApplyTo(cfg tracker.Config) tracker.Config {
	if fc.StateDir != "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.IP != "" {
		cfg.IP = fc.IP
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Silent {
		cfg.Silent = fc.Silent
	}
	if fc.Crypto != "" {
		cfg.Crypto = fc.Crypto
	}
	if fc.LogIdentifier != "" {
		cfg.LogIdentifier = fc.LogIdentifier
	}
	return cfg
}
