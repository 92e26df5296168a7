// Package config loads the tracker's optional YAML config file and
// guards it against overly permissive file modes, the same shape the
// host project uses for every node kind it ships.
package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1
