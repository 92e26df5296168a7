package tracker

import "time"

// CommunityCleanupInterval is how often the strike-aging sweep runs
// (spec.md §4.G).
const CommunityCleanupInterval = 180 * time.Second

// StatsInterval is how often the BANDWIDTH/COMMUNITY/CANDIDATE2/OUTGOING
// telemetry block is printed (spec.md §6).
const StatsInterval = 300 * time.Second

// MaxStrikes is the number of consecutive inactive cleanup ticks before
// an overlay is unloaded (spec.md §4.G).
const MaxStrikes = 3

// Config tunes the tracker process. Yaml-tagged so it can be loaded from
// an optional config file by internal/config, alongside the CLI flags
// cmd/tracker also accepts (CLI flags win when both are set).
type Config struct {
	StateDir      string `yaml:"state_dir"`
	IP            string `yaml:"ip"`
	Port          int    `yaml:"port"`
	Silent        bool   `yaml:"silent"`
	Crypto        string `yaml:"crypto"`
	LogIdentifier string `yaml:"log_identifier"`
}

// DefaultConfig mirrors the optparse defaults of the original tracker
// tool: state dir ".", listen on all interfaces, port 6421.
func DefaultConfig() Config {
	return Config{
		StateDir: ".",
		IP:       "0.0.0.0",
		Port:     6421,
		Crypto:   "NoVerifyCrypto",
	}
}
