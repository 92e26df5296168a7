package tracker

import (
	"sync"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// trackerMessageSet is the minimum message set a TrackerCommunity
// accepts (spec.md §4.G); anything else is out of scope for the
// synthesized overlay.
var trackerMessageSet = map[string]struct{}{
	"dispersy-introduction-request":  {},
	"dispersy-introduction-response": {},
	"dispersy-puncture-request":      {},
	"dispersy-puncture":              {},
	"dispersy-identity":              {},
	"dispersy-missing-identity":      {},
	"dispersy-authorize":             {},
	"dispersy-revoke":                {},
	"dispersy-missing-proof":         {},
	"dispersy-destroy-community":     {},
}

// AcceptsMessage reports whether name is in the tracker's minimum
// message set.
func AcceptsMessage(name string) bool {
	_, ok := trackerMessageSet[name]
	return ok
}

// TrackerCommunity is an on-demand overlay the tracker has synthesized
// for a cid it had never seen before (spec.md §4.G). It accepts any
// global time, never walks, and lazily installs a conversion for each
// community-version byte it observes.
type TrackerCommunity struct {
	cid       framework.CID
	telemetry *Telemetry
	metrics   *Metrics

	mu                 sync.Mutex
	strikes            int
	verifiedCandidates map[framework.Address]struct{}
	conversions        map[byte]struct{}
}

// NewTrackerCommunity synthesizes a TrackerCommunity for cid.
func NewTrackerCommunity(cid framework.CID, telemetry *Telemetry, metrics *Metrics) *TrackerCommunity {
	return &TrackerCommunity{
		cid:                cid,
		telemetry:          telemetry,
		metrics:            metrics,
		verifiedCandidates: make(map[framework.Address]struct{}),
		conversions:        make(map[byte]struct{}),
	}
}

// CID implements framework.Community.
func (c *TrackerCommunity) CID() framework.CID { return c.cid }

// EnableCandidateWalker implements framework.Community. A tracker
// overlay never walks.
func (c *TrackerCommunity) EnableCandidateWalker() bool { return false }

// TakeStep always errors: a TrackerCommunity never initiates a walk
// (spec.md §4.G).
func (c *TrackerCommunity) TakeStep() error { return ErrTrackerDoesNotWalk }

// EnsureConversion lazily installs a binary conversion for an observed
// community-version byte. Idempotent (spec.md §9, "On-demand
// conversions... must be idempotent").
func (c *TrackerCommunity) EnsureConversion(version byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversions[version] = struct{}{}
}

// HasConversion reports whether a conversion has been installed for
// version.
func (c *TrackerCommunity) HasConversion(version byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.conversions[version]
	return ok
}

// MarkVerified records that a candidate at addr has been seen recently,
// keeping the overlay's strike count from advancing on the next cleanup
// tick.
func (c *TrackerCommunity) MarkVerified(addr framework.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifiedCandidates[addr] = struct{}{}
}

// OnIntroductionRequest emits REQ_IN2 telemetry and marks the sender
// verified (spec.md §4.G). The actual protocol handling is delegated to
// the framework's default handler by the caller.
func (c *TrackerCommunity) OnIntroductionRequest(sender framework.Address, senderMID framework.MID, dispersyVersion, communityVersion byte) {
	c.EnsureConversion(communityVersion)
	c.MarkVerified(sender)
	if c.telemetry != nil {
		c.telemetry.ReqIn2(c.cid, senderMID, dispersyVersion, communityVersion, sender)
	}
	if c.metrics != nil {
		c.metrics.IntroductionRequests.WithLabelValues("active").Inc()
	}
}

// OnIntroductionResponse emits the symmetric RES_IN2 telemetry line.
func (c *TrackerCommunity) OnIntroductionResponse(sender framework.Address, senderMID framework.MID, dispersyVersion, communityVersion byte) {
	if c.telemetry != nil {
		c.telemetry.ResIn2(c.cid, senderMID, dispersyVersion, communityVersion, sender)
	}
}

// UpdateStrikes resets the strike count to 0 if any verified candidate
// exists, otherwise increments it, and clears the verified set for the
// next window. Returns the new strike count (spec.md §4.G).
func (c *TrackerCommunity) UpdateStrikes(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.verifiedCandidates) > 0 {
		c.strikes = 0
	} else {
		c.strikes++
	}
	c.verifiedCandidates = make(map[framework.Address]struct{})
	return c.strikes
}

// TrackerHardKilledCommunity replaces a TrackerCommunity once a valid
// destroy-community message has been processed and evidenced (spec.md
// §4.G). It increments strikes unconditionally every tick and, if it
// still receives an introduction request, emits DESTROY_OUT once per
// message rather than handling it.
type TrackerHardKilledCommunity struct {
	cid       framework.CID
	telemetry *Telemetry

	mu      sync.Mutex
	strikes int
}

// NewTrackerHardKilledCommunity builds the killed-state replacement for
// a destroyed TrackerCommunity.
func NewTrackerHardKilledCommunity(cid framework.CID, telemetry *Telemetry) *TrackerHardKilledCommunity {
	return &TrackerHardKilledCommunity{cid: cid, telemetry: telemetry}
}

// CID implements framework.Community.
func (c *TrackerHardKilledCommunity) CID() framework.CID { return c.cid }

// EnableCandidateWalker implements framework.Community.
func (c *TrackerHardKilledCommunity) EnableCandidateWalker() bool { return false }

// UpdateStrikes unconditionally increments and returns the strike count
// (spec.md §4.G: "unconditionally increments strikes every tick").
func (c *TrackerHardKilledCommunity) UpdateStrikes(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strikes++
	return c.strikes
}

// OnIntroductionRequest emits a DESTROY_OUT line instead of handling the
// request.
func (c *TrackerHardKilledCommunity) OnIntroductionRequest(_ framework.Address, senderMID framework.MID, _, _ byte) {
	if c.telemetry != nil {
		c.telemetry.DestroyOut(c.cid, senderMID)
	}
}
