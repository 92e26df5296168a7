package config

import "errors"

// ErrConfigVersionTooNew is returned when a config file declares a
// schema version newer than this binary supports.
var ErrConfigVersionTooNew = errors.New("config version too new")
