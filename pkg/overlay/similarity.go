package overlay

import (
	"sort"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

const similarityFamily = "similarity"

// bitfieldWidth is the hard 32-bit limit spec.md §4.D fixes for
// preference-overlap bitfields; both encoder and decoder must cap
// iteration here to stay bit-exact with peers running the original
// protocol.
const bitfieldWidth = 32

// SimilarityRequestPayload is the wire payload of a similarity-request.
type SimilarityRequestPayload struct {
	ID             uint16
	LAN            framework.Address
	WAN            framework.Address
	ConnectionType framework.ConnectionType
	Preferences    []framework.CID
}

// BuddyBitfield is one entry of a similarity-response's buddy list: a
// confirmed buddy's member id plus the 32-bit overlap bitfield against
// the original request's preference list.
type BuddyBitfield struct {
	MID      framework.MID
	Bitfield uint32
}

// SimilarityResponsePayload is the wire payload of a similarity-response.
type SimilarityResponsePayload struct {
	ID          uint16
	Preferences []framework.CID
	Buddies     []BuddyBitfield
}

// SimilarityAttempt is the request-cache entry for an outstanding
// similarity-request (spec.md §3). On timeout, Protocol falls back to a
// plain introduction request toward RequestedCandidate.
type SimilarityAttempt struct {
	ID                 uint16
	RequestedCandidate framework.WalkCandidate
	PreferenceList     []framework.CID
}

// Protocol implements the similarity-request/-response exchange
// (spec.md §4.D) on top of a Registry and a RequestCache.
type Protocol struct {
	cfg      Config
	registry *Registry
	cache    *RequestCache
	dispersy framework.Dispersy

	localMID        framework.MID
	localPreference func(max int) []framework.CID

	// IsBootstrapSeed reports whether a candidate is a known bootstrap
	// seed; similarity is skipped toward seeds (spec.md §4.D).
	IsBootstrapSeed func(framework.WalkCandidate) bool

	// IssuePlainIntroductionRequest and IssueSteeredIntroductionRequest
	// are the two ways an introduction request actually leaves the
	// node, both implemented by the caller (community.go) since encoding
	// the request itself belongs to the framework.
	IssuePlainIntroductionRequest   func(destination framework.WalkCandidate)
	IssueSteeredIntroductionRequest func(destination framework.WalkCandidate, introduceMeTo framework.MID)

	// LocalAddress reports this node's own LAN/WAN address and NAT
	// classification, as carried in a similarity-request. Set by
	// community.go, which knows the local candidate.
	LocalAddress func() (lan, wan framework.Address, connType framework.ConnectionType)

	clock func() time.Time
}

// NewProtocol builds a Protocol. localPreference(max) must return at
// most max CIDs of the local member's walker-enabled overlays.
func NewProtocol(cfg Config, registry *Registry, cache *RequestCache, dispersy framework.Dispersy, localMID framework.MID, localPreference func(max int) []framework.CID) *Protocol {
	return &Protocol{
		cfg:             cfg,
		registry:        registry,
		cache:           cache,
		dispersy:        dispersy,
		localMID:        localMID,
		localPreference: localPreference,
		clock:           time.Now,
	}
}

// Intercept is called just before the framework would emit an ordinary
// introduction request toward destination. It returns true only if it
// took over the attempt by sending a similarity-request. It returns false
// when the caller must issue the plain introduction request itself right
// away: destination is already a confirmed buddy, has advertised a
// possible buddy to us, or is a bootstrap seed; with no local preferences
// it returns false together with ErrNoPreferences.
func (p *Protocol) Intercept(destination framework.WalkCandidate) (bool, error) {
	if atb, ok := p.registry.ByCandidate(destination); ok && atb != nil {
		return false, nil
	}
	if p.registry.HasPossibleTasteBuddyFrom(destination.SockAddr()) {
		return false, nil
	}
	if p.IsBootstrapSeed != nil && p.IsBootstrapSeed(destination) {
		return false, nil
	}

	prefs := p.localPreference(p.cfg.MaxPreferences)
	if len(prefs) == 0 {
		return false, ErrNoPreferences
	}

	attempt := &SimilarityAttempt{RequestedCandidate: destination, PreferenceList: prefs}
	id, err := p.cache.Add(similarityFamily, p.cfg.SimilarityTimeout, attempt, p.onTimeout)
	if err != nil {
		return false, err
	}
	attempt.ID = id

	var lan, wan framework.Address
	var connType framework.ConnectionType
	if p.LocalAddress != nil {
		lan, wan, connType = p.LocalAddress()
	}
	payload := SimilarityRequestPayload{
		ID:             id,
		LAN:            lan,
		WAN:            wan,
		ConnectionType: connType,
		Preferences:    prefs,
	}

	msg := framework.Message{Name: "similarity-request", Candidate: destination, Payload: payload}
	if err := p.dispersy.Send([]framework.WalkCandidate{destination}, []framework.Message{msg}); err != nil {
		p.cache.Pop(similarityFamily, id)
		return false, err
	}
	return true, nil
}

func (p *Protocol) onTimeout(_ uint16, data any) {
	attempt := data.(*SimilarityAttempt)
	if p.IssuePlainIntroductionRequest != nil {
		p.IssuePlainIntroductionRequest(attempt.RequestedCandidate)
	}
}

// OnSimilarityRequest implements reception of a similarity-request
// (spec.md §4.D, steps 1-4).
func (p *Protocol) OnSimilarityRequest(sender framework.Address, lan, wan framework.Address, tunnel bool, connType framework.ConnectionType, senderMID framework.MID, req SimilarityRequestPayload) SimilarityResponsePayload {
	candidate := p.dispersy.CreateOrUpdateWalkCandidate(sender, lan, wan, tunnel, connType, nil)

	hisPrefs := newPreferenceSet(req.Preferences)

	atb := &ActualTasteBuddy{
		tasteBuddy: tasteBuddy{Preferences: hisPrefs, SockAddr: sender},
		Timestamp:  p.clock(),
		MID:        senderMID,
		Candidate:  candidate,
	}
	atb.Overlap = computeOverlap(hisPrefs, newPreferenceSet(p.localPreference(p.cfg.MaxPreferences)))
	p.registry.AddTasteBuddies([]*ActualTasteBuddy{atb})

	limit := len(req.Preferences)
	if limit > bitfieldWidth {
		limit = bitfieldWidth
	}

	var buddies []BuddyBitfield
	for _, tb := range p.topTasteBuddies(p.cfg.MaxTasteBuddies, sender) {
		bitfield := encodeBitfield(req.Preferences[:limit], tb.Preferences)
		buddies = append(buddies, BuddyBitfield{MID: tb.MID, Bitfield: bitfield})
	}

	return SimilarityResponsePayload{
		ID:          req.ID,
		Preferences: p.localPreference(p.cfg.MaxPreferences),
		Buddies:     buddies,
	}
}

// topTasteBuddies returns up to n confirmed buddies, excluding the sender
// itself, ranked highest first by the overlap of each buddy's preferences
// with the local preferences.
func (p *Protocol) topTasteBuddies(n int, exclude framework.Address) []*ActualTasteBuddy {
	all := p.registry.YieldTasteBuddies(&exclude)
	mine := newPreferenceSet(p.localPreference(p.cfg.MaxPreferences))
	sort.SliceStable(all, func(i, j int) bool {
		return computeOverlap(all[i].Preferences, mine) > computeOverlap(all[j].Preferences, mine)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// OnSimilarityResponse implements reception of a similarity-response
// (spec.md §4.D, on_similarity_response).
func (p *Protocol) OnSimilarityResponse(responder framework.WalkCandidate, responderMID framework.MID, timelineOK bool, resp SimilarityResponsePayload) error {
	if !timelineOK {
		return ErrTimelineRejected
	}

	raw, ok := p.cache.Get(similarityFamily, resp.ID)
	if !ok {
		return ErrUnknownCorrelationID
	}
	attempt := raw.(*SimilarityAttempt)

	responderPrefs := newPreferenceSet(resp.Preferences)
	atb := &ActualTasteBuddy{
		tasteBuddy: tasteBuddy{Preferences: responderPrefs, SockAddr: responder.SockAddr()},
		Timestamp:  p.clock(),
		MID:        responderMID,
		Candidate:  responder,
	}
	atb.Overlap = computeOverlap(responderPrefs, newPreferenceSet(p.localPreference(p.cfg.MaxPreferences)))
	p.registry.AddTasteBuddies([]*ActualTasteBuddy{atb})

	limit := len(attempt.PreferenceList)
	if limit > bitfieldWidth {
		limit = bitfieldWidth
	}
	var newPossible []*PossibleTasteBuddy
	for _, b := range resp.Buddies {
		prefs := decodeBitfield(attempt.PreferenceList[:limit], b.Bitfield)
		newPossible = append(newPossible, &PossibleTasteBuddy{
			tasteBuddy:   tasteBuddy{Overlap: len(prefs), Preferences: prefs, SockAddr: responder.SockAddr()},
			Timestamp:    p.clock(),
			MID:          b.MID,
			ReceivedFrom: responder,
		})
	}
	p.registry.AddPossibleTasteBuddies(newPossible)

	p.cache.Pop(similarityFamily, resp.ID)

	destination, introduceMeTo := p.registry.GetMostSimilar(responder)
	if p.IssueSteeredIntroductionRequest != nil {
		if introduceMeTo != nil {
			p.IssueSteeredIntroductionRequest(destination, *introduceMeTo)
		} else {
			p.IssuePlainIntroductionRequest(destination)
		}
	}
	return nil
}

// encodeBitfield sets bit i iff hisPrefs[i] is a member of tbPrefs, for
// i in [0, min(len(hisPrefs), 32)) (spec.md §4.D).
func encodeBitfield(hisPrefs []framework.CID, tbPrefs preferenceSet) uint32 {
	n := len(hisPrefs)
	if n > bitfieldWidth {
		n = bitfieldWidth
	}
	var bits uint32
	for i := 0; i < n; i++ {
		if _, ok := tbPrefs[hisPrefs[i]]; ok {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// decodeBitfield reconstructs the subset of requestPrefs whose bit is
// set, capped at 32 entries (spec.md §4.D).
func decodeBitfield(requestPrefs []framework.CID, bitfield uint32) preferenceSet {
	n := len(requestPrefs)
	if n > bitfieldWidth {
		n = bitfieldWidth
	}
	out := make(preferenceSet)
	for i := 0; i < n; i++ {
		if bitfield&(1<<uint(i)) != 0 {
			out[requestPrefs[i]] = struct{}{}
		}
	}
	return out
}

