package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// Factory manufactures in-memory overlay objects per observed community
// id, ages them, and routes destroy evidence through the evidence log
// (spec.md §4.G). The cid → overlay table is process-wide and mutated
// only through Factory's own mutex (spec.md §9, "Global overlay table").
type Factory struct {
	mu          sync.Mutex
	communities map[framework.CID]framework.Community
	exempt      map[framework.CID]struct{}
	dispersy    framework.Dispersy
	telemetry   *Telemetry
	evidence    *EvidenceLog
	metrics     *Metrics
	logger      *slog.Logger
	clock       func() time.Time
}

// NewFactory builds a Factory. dispersy is used for timeline checks and
// sync-table lookups when a destroy transition needs to gather evidence.
func NewFactory(dispersy framework.Dispersy, telemetry *Telemetry, evidence *EvidenceLog, metrics *Metrics, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		communities: make(map[framework.CID]framework.Community),
		exempt:      make(map[framework.CID]struct{}),
		dispersy:    dispersy,
		telemetry:   telemetry,
		evidence:    evidence,
		metrics:     metrics,
		logger:      logger,
		clock:       time.Now,
	}
}

// RegisterExempt adds a community that is always active and never aged
// by CleanupTick — DiscoveryCommunity is the only such overlay (spec.md
// §4.G: "DiscoveryCommunity is exempt: always active").
func (f *Factory) RegisterExempt(c framework.Community) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.communities[c.CID()] = c
	f.exempt[c.CID()] = struct{}{}
}

// GetCommunity returns the overlay for cid, synthesizing a
// TrackerCommunity on first sight (spec.md §4.G, get_community).
func (f *Factory) GetCommunity(cid framework.CID) framework.Community {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.communities[cid]; ok {
		return c
	}

	c := NewTrackerCommunity(cid, f.telemetry, f.metrics)
	f.communities[cid] = c
	if f.metrics != nil {
		f.metrics.OverlaysSynthesized.Inc()
		f.metrics.OverlaysActive.Set(float64(len(f.communities)))
	}
	return c
}

// DestroyCommunity records evidence for a destroy-community message
// received on a TrackerCommunity and replaces it with a
// TrackerHardKilledCommunity (spec.md §4.G "Destroy transition",
// §4.H). signerMemberDBID/metaMessageID identify the signer's identity
// packet in the framework sync table.
//
// Proofs are gathered recursively: every timeline proof returned for
// destroyMsg is itself timeline-checked for its own proofs-of-proofs,
// the same work-queue original_source/tool/tracker.py's
// dispersy_cleanup_community runs (messages = [message]; while
// messages: message = messages.pop(); ...; messages.extend(proofs)).
func (f *Factory) DestroyCommunity(cid framework.CID, fromCandidate string, destroyMsg framework.Message, metaMessageID string, signerMemberDBID int64) error {
	identityPacket, _ := f.dispersy.SyncLookup(metaMessageID, signerMemberDBID)
	proofs := f.gatherProofsRecursively(destroyMsg)

	if err := f.evidence.Append(fromCandidate, destroyMsg.Packet, identityPacket, proofs); err != nil {
		return err
	}

	if f.telemetry != nil && destroyMsg.Authenticator != nil {
		f.telemetry.DestroyIn(cid, destroyMsg.Authenticator.MID())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.communities[cid] = NewTrackerHardKilledCommunity(cid, f.telemetry)
	if f.metrics != nil {
		f.metrics.OverlaysKilled.Inc()
	}
	return nil
}

// gatherProofsRecursively walks the proof graph rooted at msg, timeline-
// checking every proof message for its own proofs-of-proofs in turn
// (original_source/tool/tracker.py's dispersy_cleanup_community work
// queue) and deduplicating by packet bytes the same way evidence.Append
// already does for the flat list it used to receive.
func (f *Factory) gatherProofsRecursively(msg framework.Message) []framework.Message {
	var gathered []framework.Message
	seen := map[string]struct{}{string(msg.Packet): {}}
	queue := []framework.Message{msg}

	for len(queue) > 0 {
		n := len(queue) - 1
		current := queue[n]
		queue = queue[:n]

		_, proofs := f.dispersy.Timeline().Check(current)
		for _, p := range proofs {
			if _, dup := seen[string(p.Packet)]; dup {
				continue
			}
			seen[string(p.Packet)] = struct{}{}
			gathered = append(gathered, p)
			queue = append(queue, p)
		}
	}

	return gathered
}

// CleanupTick runs the strike-aging sweep (spec.md §4.G, every
// COMMUNITY_CLEANUP_INTERVAL). Returns how many overlays were unloaded
// and how many were examined, for the supplemental "#cleaned N/M
// communities" debug line.
func (f *Factory) CleanupTick() (cleaned, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock()
	total = len(f.communities)
	for cid, c := range f.communities {
		if _, ok := f.exempt[cid]; ok {
			continue
		}

		var strikes int
		switch v := c.(type) {
		case *TrackerCommunity:
			strikes = v.UpdateStrikes(now)
		case *TrackerHardKilledCommunity:
			strikes = v.UpdateStrikes(now)
		default:
			continue
		}

		if strikes >= MaxStrikes {
			delete(f.communities, cid)
			cleaned++
			if f.metrics != nil {
				f.metrics.OverlaysUnloaded.Inc()
			}
		}
	}

	if f.metrics != nil {
		f.metrics.OverlaysActive.Set(float64(len(f.communities)))
	}
	f.logger.Debug("cleaned communities", "cleaned", cleaned, "total", total)
	return cleaned, total
}

// StatsSnapshot counts the current overlay table by kind, for the
// periodic COMMUNITY telemetry line (spec.md §6): trackers still active,
// killed (evidenced destroy), and exempt discovery overlays.
func (f *Factory) StatsSnapshot() (trackers, killed, discoveries, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for cid, c := range f.communities {
		if _, ok := f.exempt[cid]; ok {
			discoveries++
			continue
		}
		switch c.(type) {
		case *TrackerCommunity:
			trackers++
		case *TrackerHardKilledCommunity:
			killed++
		}
	}
	return trackers, killed, discoveries, len(f.communities)
}

// Run drives the CleanupTick sweep every CommunityCleanupInterval until
// stop is closed.
func (f *Factory) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(CommunityCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.CleanupTick()
		case <-stop:
			return
		}
	}
}

// ReplayEvidence recovers destroy evidence from a prior run by replaying
// the evidence log in reverse and forwarding each recovered packet
// through the framework's incoming-packet path (Dispersy.Forward) with
// caching disabled, without any network traffic (spec.md §4.H, scenario
// S6). It does not itself replace any overlay; a TrackerHardKilledCommunity
// is installed only if the framework processes the forwarded destroy
// packet and calls DestroyCommunity.
func (f *Factory) ReplayEvidence() error {
	return f.evidence.Replay(func(candidate framework.WalkCandidate, name string, packet []byte) error {
		msg := framework.Message{
			Name:            name,
			Candidate:       candidate,
			Packet:          packet,
			CachingDisabled: true,
		}
		return f.dispersy.Forward([]framework.Message{msg})
	})
}
