package framework

import "sync"

// InMemoryDispersy is a minimal, goroutine-safe Dispersy implementation
// for tests and simulation. Send/Forward record every message instead of
// putting bytes on a wire; SyncLookup serves packets previously recorded
// via Store.
type InMemoryDispersy struct {
	mu sync.Mutex

	communities []Community
	timeline    Timeline

	sent     []SentMessage
	forwards []Message

	candidates map[Address]WalkCandidate
	syncTable  map[syncKey][]byte
}

// SentMessage records one Send call's candidate/message pairing so tests
// can assert who received what.
type SentMessage struct {
	Candidate WalkCandidate
	Message   Message
}

type syncKey struct {
	metaMessageID string
	memberDBID    int64
}

// NewInMemoryDispersy builds an InMemoryDispersy. A nil timeline accepts
// every message unconditionally, which is the common case in tests that
// don't exercise authorization.
func NewInMemoryDispersy(communities []Community, timeline Timeline) *InMemoryDispersy {
	if timeline == nil {
		timeline = acceptAllTimeline{}
	}
	return &InMemoryDispersy{
		communities: communities,
		timeline:    timeline,
		candidates:  make(map[Address]WalkCandidate),
		syncTable:   make(map[syncKey][]byte),
	}
}

// AddCommunity registers c so later Communities() calls include it. Used
// at startup to add overlays synthesized after the Dispersy instance
// itself was constructed, such as the local DiscoveryCommunity.
func (d *InMemoryDispersy) AddCommunity(c Community) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.communities = append(d.communities, c)
}

func (d *InMemoryDispersy) Communities() []Community {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Community, len(d.communities))
	copy(out, d.communities)
	return out
}

func (d *InMemoryDispersy) Send(candidates []WalkCandidate, messages []Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range candidates {
		for _, m := range messages {
			d.sent = append(d.sent, SentMessage{Candidate: c, Message: m})
		}
	}
	return nil
}

func (d *InMemoryDispersy) Forward(messages []Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forwards = append(d.forwards, messages...)
	return nil
}

func (d *InMemoryDispersy) CreateOrUpdateWalkCandidate(sockAddr, lan, wan Address, tunnel bool, connType ConnectionType, existing WalkCandidate) WalkCandidate {
	d.mu.Lock()
	defer d.mu.Unlock()

	var member Member
	if existing != nil {
		member, _ = existing.Member()
	}
	c := NewCandidate(sockAddr, lan, wan, tunnel, connType, member)
	d.candidates[sockAddr] = c
	return c
}

// CandidateByMID scans the candidate table for one whose member id
// matches mid. O(n) in the candidate count, fine for this in-memory
// implementation's test/simulation scope.
func (d *InMemoryDispersy) CandidateByMID(mid MID) (WalkCandidate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.candidates {
		if m, ok := c.Member(); ok && m.MID() == mid {
			return c, true
		}
	}
	return nil, false
}

func (d *InMemoryDispersy) Timeline() Timeline { return d.timeline }

func (d *InMemoryDispersy) SyncLookup(metaMessageID string, memberDBID int64) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	packet, ok := d.syncTable[syncKey{metaMessageID, memberDBID}]
	return packet, ok
}

// Store records a packet under (metaMessageID, memberDBID) so a later
// SyncLookup can retrieve it. Tests use this to seed identity packets the
// destroy-evidence log needs to recover.
func (d *InMemoryDispersy) Store(metaMessageID string, memberDBID int64, packet []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncTable[syncKey{metaMessageID, memberDBID}] = packet
}

// Sent returns every message handed to Send so far, in order.
func (d *InMemoryDispersy) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

// Forwarded returns every message handed to Forward so far, in order.
func (d *InMemoryDispersy) Forwarded() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.forwards))
	copy(out, d.forwards)
	return out
}

type acceptAllTimeline struct{}

func (acceptAllTimeline) Check(Message) (bool, []Message) { return true, nil }
