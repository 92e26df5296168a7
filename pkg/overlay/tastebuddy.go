package overlay

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// preferenceSet is a CID set; preferences are compared by membership, not
// order (spec.md §3).
type preferenceSet map[framework.CID]struct{}

func newPreferenceSet(cids []framework.CID) preferenceSet {
	s := make(preferenceSet, len(cids))
	for _, c := range cids {
		s[c] = struct{}{}
	}
	return s
}

// computeOverlap returns the cardinality of the intersection of two
// preference sets (spec.md §4.C). Symmetric by construction.
func computeOverlap(a, b preferenceSet) int {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	n := 0
	for c := range small {
		if _, ok := big[c]; ok {
			n++
		}
	}
	return n
}

// tasteBuddy is the shared shape of ActualTasteBuddy and
// PossibleTasteBuddy (spec.md §3).
type tasteBuddy struct {
	Overlap     int
	Preferences preferenceSet
	SockAddr    framework.Address
}

func (b *tasteBuddy) updateOverlap(other preferenceSet) {
	for c := range other {
		b.Preferences[c] = struct{}{}
	}
	// overlap is recomputed by the caller against local preferences,
	// since this type doesn't know "mine" on its own.
}

// ActualTasteBuddy is a confirmed buddy: one we've directly exchanged a
// similarity request or response with.
type ActualTasteBuddy struct {
	tasteBuddy
	Timestamp time.Time
	MID       framework.MID
	Candidate framework.WalkCandidate
}

// TimeRemaining is max(0, timestamp + pingTimeout - now).
func (b *ActualTasteBuddy) TimeRemaining(now time.Time, pingTimeout time.Duration) time.Duration {
	d := b.Timestamp.Add(pingTimeout).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Cacheable reports whether this buddy's candidate has a public
// connection type, the only kind worth remembering across sessions.
func (b *ActualTasteBuddy) Cacheable() bool {
	return b.Candidate != nil && b.Candidate.ConnectionType() == framework.ConnectionPublic
}

// PossibleTasteBuddy is a buddy advertised by a third party but not yet
// contacted directly.
type PossibleTasteBuddy struct {
	tasteBuddy
	Timestamp    time.Time
	MID          framework.MID
	ReceivedFrom framework.WalkCandidate
}

// Registry maintains the confirmed and possible taste-buddy collections
// (spec.md §4.C) and the lookup methods Design Note 9 calls for in place
// of an overloaded equality relation.
type Registry struct {
	mu sync.Mutex

	cfg   Config
	clock func() time.Time

	localMID        framework.MID
	localPreference func() preferenceSet

	tasteBuddies         []*ActualTasteBuddy
	possibleTasteBuddies []*PossibleTasteBuddy

	// crossWire is invoked by add_taste_buddies once per preference CID of
	// every buddy passed in, merged or new; the callback itself decides
	// whether that CID is a walker-enabled local overlay (spec.md §4.C,
	// "cross-wiring").
	crossWire func(cid framework.CID, candidate framework.WalkCandidate)

	// startPingTask fires exactly once, the first time the registry gains
	// its first confirmed buddy, so the ping liveness task only runs once
	// there's something to ping.
	startPingTask func()
	pingStarted   bool
}

// NewRegistry builds a Registry. localPreference is called lazily so it
// always reflects the current set of walker-enabled local overlays.
func NewRegistry(cfg Config, localMID framework.MID, localPreference func() preferenceSet) *Registry {
	return &Registry{
		cfg:             cfg,
		clock:           time.Now,
		localMID:        localMID,
		localPreference: localPreference,
	}
}

// SetCrossWire installs the cross-wiring callback (optional).
func (r *Registry) SetCrossWire(f func(cid framework.CID, candidate framework.WalkCandidate)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crossWire = f
}

// SetPingTaskStarter installs the callback invoked the first time a
// confirmed buddy is added (optional).
func (r *Registry) SetPingTaskStarter(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startPingTask = f
}

// AddTasteBuddies merges new confirmed buddies into the registry
// (spec.md §4.C, add_taste_buddies).
func (r *Registry) AddTasteBuddies(new []*ActualTasteBuddy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mine := r.localPreference()
	for _, n := range new {
		merged := false
		for _, e := range r.tasteBuddies {
			if e.SockAddr == n.SockAddr {
				e.updateOverlap(n.Preferences)
				e.Overlap = computeOverlap(e.Preferences, mine)
				e.Timestamp = n.Timestamp
				merged = true
				break
			}
		}
		if !merged {
			r.tasteBuddies = append(r.tasteBuddies, n)
			if !r.pingStarted && r.startPingTask != nil {
				r.pingStarted = true
				r.startPingTask()
			}
		}

		if r.crossWire != nil {
			for cid := range n.Preferences {
				r.crossWire(cid, n.Candidate)
			}
		}
	}

	sort.SliceStable(r.tasteBuddies, func(i, j int) bool {
		return r.tasteBuddies[i].Overlap > r.tasteBuddies[j].Overlap
	})
}

// YieldTasteBuddies purges stale entries, then returns a shuffled
// snapshot excluding zero-overlap entries and, when ignore is non-nil,
// the entry matching that socket address (spec.md §4.C,
// yield_taste_buddies).
func (r *Registry) YieldTasteBuddies(ignore *framework.Address) []*ActualTasteBuddy {
	r.mu.Lock()
	r.purgeStaleLocked()
	snapshot := make([]*ActualTasteBuddy, len(r.tasteBuddies))
	copy(snapshot, r.tasteBuddies)
	r.mu.Unlock()

	rand.Shuffle(len(snapshot), func(i, j int) { snapshot[i], snapshot[j] = snapshot[j], snapshot[i] })

	out := snapshot[:0]
	for _, b := range snapshot {
		if b.Overlap == 0 {
			continue
		}
		if ignore != nil && b.SockAddr == *ignore {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (r *Registry) purgeStaleLocked() {
	now := r.clock()
	kept := r.tasteBuddies[:0]
	for _, b := range r.tasteBuddies {
		if b.TimeRemaining(now, r.cfg.PingTimeout) > 0 {
			kept = append(kept, b)
		}
	}
	r.tasteBuddies = kept
}

// AddPossibleTasteBuddies merges advertised-but-uncontacted buddies,
// dropping any that match an existing confirmed buddy or the local
// member (spec.md §4.C, add_possible_taste_buddies).
func (r *Registry) AddPossibleTasteBuddies(new []*PossibleTasteBuddy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range new {
		if n.MID == r.localMID {
			continue
		}
		if r.confirmedByMIDLocked(n.MID) != nil {
			continue
		}

		merged := false
		for _, e := range r.possibleTasteBuddies {
			if e.MID == n.MID {
				e.updateOverlap(n.Preferences)
				e.Overlap = computeOverlap(e.Preferences, r.localPreference())
				e.Timestamp = n.Timestamp
				e.ReceivedFrom = n.ReceivedFrom
				merged = true
				break
			}
		}
		if !merged {
			r.possibleTasteBuddies = append(r.possibleTasteBuddies, n)
		}
	}

	sort.SliceStable(r.possibleTasteBuddies, func(i, j int) bool {
		return r.possibleTasteBuddies[i].Overlap > r.possibleTasteBuddies[j].Overlap
	})
}

// CleanPossibleTasteBuddies drops stale PTBs and any PTB now promoted to
// a confirmed buddy (spec.md §4.C, clean_possible_taste_buddies).
func (r *Registry) CleanPossibleTasteBuddies() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanPossibleLocked()
}

func (r *Registry) cleanPossibleLocked() {
	now := r.clock()
	kept := r.possibleTasteBuddies[:0]
	for _, p := range r.possibleTasteBuddies {
		if p.Timestamp.Add(r.cfg.PingTimeout).Before(now) {
			continue
		}
		if r.confirmedByMIDLocked(p.MID) != nil {
			continue
		}
		kept = append(kept, p)
	}
	r.possibleTasteBuddies = kept
}

// GetMostSimilar purges PTBs, then pops the highest-overlap one; falling
// back to candidate itself with no steered MID when none remain
// (spec.md §4.C, get_most_similar).
func (r *Registry) GetMostSimilar(candidate framework.WalkCandidate) (framework.WalkCandidate, *framework.MID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanPossibleLocked()
	if len(r.possibleTasteBuddies) == 0 {
		return candidate, nil
	}

	head := r.possibleTasteBuddies[0]
	r.possibleTasteBuddies = r.possibleTasteBuddies[1:]
	mid := head.MID
	return head.ReceivedFrom, &mid
}

// ByMID looks up a confirmed buddy by member id.
func (r *Registry) ByMID(mid framework.MID) (*ActualTasteBuddy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.confirmedByMIDLocked(mid)
	return b, b != nil
}

func (r *Registry) confirmedByMIDLocked(mid framework.MID) *ActualTasteBuddy {
	for _, b := range r.tasteBuddies {
		if b.MID == mid {
			return b
		}
	}
	return nil
}

// BySockAddr looks up a confirmed buddy by socket address.
func (r *Registry) BySockAddr(addr framework.Address) (*ActualTasteBuddy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.tasteBuddies {
		if b.SockAddr == addr {
			return b, true
		}
	}
	return nil, false
}

// ByCandidate looks up a confirmed buddy by member mid (if the candidate
// reports one), falling back to socket address.
func (r *Registry) ByCandidate(c framework.WalkCandidate) (*ActualTasteBuddy, bool) {
	if m, ok := c.Member(); ok {
		if b, ok := r.ByMID(m.MID()); ok {
			return b, true
		}
	}
	return r.BySockAddr(c.SockAddr())
}

// PossibleByMID looks up a possible buddy by member id.
func (r *Registry) PossibleByMID(mid framework.MID) (*PossibleTasteBuddy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.possibleTasteBuddies {
		if p.MID == mid {
			return p, true
		}
	}
	return nil, false
}

// HasPossibleTasteBuddyFrom reports whether some PTB was received from
// addr, used by the similarity protocol to decide whether an
// introduction target has already advertised buddies to us and
// similarity should be skipped (original_source
// discovery/community.py's has_possible_taste_buddies, which compares a
// candidate against PossibleTasteBuddy.received_from.sock_addr, not the
// PTB's own candidate_mid).
func (r *Registry) HasPossibleTasteBuddyFrom(addr framework.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.possibleTasteBuddies {
		if p.ReceivedFrom != nil && p.ReceivedFrom.SockAddr() == addr {
			return true
		}
	}
	return false
}

// Remove drops a confirmed buddy by member id, used by the ping
// subsystem on timeout eviction (spec.md §4.E).
func (r *Registry) Remove(mid framework.MID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tasteBuddies[:0]
	for _, b := range r.tasteBuddies {
		if b.MID != mid {
			kept = append(kept, b)
		}
	}
	r.tasteBuddies = kept
}

// RefreshTimestamp bumps a confirmed buddy's liveness timestamp, used by
// ping/pong/similarity activity to keep it from going stale.
func (r *Registry) RefreshTimestamp(mid framework.MID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.confirmedByMIDLocked(mid); b != nil {
		b.Timestamp = at
	}
}
