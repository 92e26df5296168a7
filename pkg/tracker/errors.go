package tracker

import "errors"

var (
	// ErrTrackerDoesNotWalk is returned by TakeStep: a TrackerCommunity
	// never initiates candidate walks (spec.md §4.G).
	ErrTrackerDoesNotWalk = errors.New("tracker community does not walk")

	// ErrCommunityKilled is returned when an operation that only makes
	// sense on a live overlay is attempted against a
	// TrackerHardKilledCommunity.
	ErrCommunityKilled = errors.New("community has been destroyed")

	// ErrConversionUndecodable is returned when a packet's community
	// version byte still fails to decode after a conversion has been
	// lazily installed for it (spec.md §7).
	ErrConversionUndecodable = errors.New("cannot decode")
)
