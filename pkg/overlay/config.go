package overlay

import "time"

// CandidateWalkLifetime anchors every derived interval in this package,
// the way the original protocol ties ping cadence and staleness to one
// walk-lifetime constant rather than three independent knobs.
const CandidateWalkLifetime = 25 * time.Second

// Config tunes DiscoveryCommunity. Zero value is invalid; use
// DefaultConfig and override individual fields.
type Config struct {
	// MaxPreferences caps how many of the local member's preferences are
	// sent in a similarity-request (spec.md §4.D).
	MaxPreferences int

	// MaxTasteBuddies caps how many confirmed buddies are reflected back
	// in a similarity-response (spec.md §4.D, "top-N").
	MaxTasteBuddies int

	// PingInterval is how often the liveness tick runs.
	PingInterval time.Duration

	// PingTimeout is how long a buddy may go unrefreshed before it's
	// considered stale.
	PingTimeout time.Duration

	// SimilarityTimeout and PingCacheTimeout are the request-cache
	// entry lifetimes for the two families this package uses.
	SimilarityTimeout time.Duration
	PingCacheTimeout  time.Duration
}

// DefaultConfig mirrors the reference constants: PING_INTERVAL =
// walk_lifetime/5, PING_TIMEOUT = walk_lifetime/2, both request-cache
// families at 10.5s regardless of walk lifetime.
func DefaultConfig() Config {
	return Config{
		MaxPreferences:    25,
		MaxTasteBuddies:   25,
		PingInterval:      CandidateWalkLifetime / 5,
		PingTimeout:       CandidateWalkLifetime / 2,
		SimilarityTimeout: 10500 * time.Millisecond,
		PingCacheTimeout:  10500 * time.Millisecond,
	}
}
