package overlay

import (
	"sync"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// Steering overrides the framework's default introduction-target
// selection with a similarity-preferred one (spec.md §4.F). It owns
// requested_introductions independently of Registry since it's consumed
// read-and-delete on a different cadence (per inbound request) than the
// buddy collections are.
type Steering struct {
	mu       sync.Mutex
	registry *Registry

	// requested maps a peer's MID to the candidate we should introduce
	// them to next time they ask, consumed at most once per insertion.
	requested map[framework.MID]framework.WalkCandidate

	// CandidateByMID resolves a MID to a candidate when it isn't one of
	// our own confirmed buddies, delegating to the framework's broader
	// candidate knowledge. May be nil.
	CandidateByMID func(framework.MID) (framework.WalkCandidate, bool)
}

// NewSteering builds a Steering component over the given Registry.
func NewSteering(registry *Registry) *Steering {
	return &Steering{
		registry:  registry,
		requested: make(map[framework.MID]framework.WalkCandidate),
	}
}

// GetIntroduceCandidate overrides the framework's get_introduce_candidate
// hook: if exclude has a known MID with a pending steered target, that
// target is consumed and returned; otherwise ok is false and the caller
// must fall through to the framework's own default selection.
func (s *Steering) GetIntroduceCandidate(exclude framework.WalkCandidate) (framework.WalkCandidate, bool) {
	m, ok := exclude.Member()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.requested[m.MID()]
	if !ok {
		return nil, false
	}
	delete(s.requested, m.MID())
	return target, true
}

// OnIntroductionRequest taps an inbound introduction request: if it
// carries introduceMeTo, record the resolved target under the sender's
// MID before the caller forwards the request to the framework's default
// handler (spec.md §4.F).
func (s *Steering) OnIntroductionRequest(senderMID framework.MID, introduceMeTo *framework.MID) {
	if introduceMeTo == nil {
		return
	}

	var target framework.WalkCandidate
	if b, ok := s.registry.ByMID(*introduceMeTo); ok {
		target = b.Candidate
	} else if s.CandidateByMID != nil {
		target, _ = s.CandidateByMID(*introduceMeTo)
	}
	if target == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested[senderMID] = target
}
