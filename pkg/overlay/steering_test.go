package overlay

import (
	"testing"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

func TestSteering_OnIntroductionRequestNilIntroduceMeToIsNoop(t *testing.T) {
	r := newTestRegistry(framework.MID{}, nil)
	s := NewSteering(r)

	s.OnIntroductionRequest(framework.MID{1}, nil)

	member := framework.NewMember(framework.MID{1}, nil)
	candidate := framework.NewCandidate(framework.Address{}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, member)
	if _, ok := s.GetIntroduceCandidate(candidate); ok {
		t.Fatal("expected no steered target queued")
	}
}

func TestSteering_SteersToConfirmedBuddyThenConsumesOnce(t *testing.T) {
	r := newTestRegistry(framework.MID{}, nil)
	s := NewSteering(r)

	targetMID := framework.MID{2}
	targetCandidate := framework.NewCandidate(framework.Address{Host: "target"}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, nil)
	buddy := newATB(targetMID, framework.Address{Host: "target"}, 1, nil)
	buddy.Candidate = targetCandidate
	r.AddTasteBuddies([]*ActualTasteBuddy{buddy})

	senderMID := framework.MID{1}
	s.OnIntroductionRequest(senderMID, &targetMID)

	senderMember := framework.NewMember(senderMID, nil)
	senderCandidate := framework.NewCandidate(framework.Address{}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, senderMember)

	got, ok := s.GetIntroduceCandidate(senderCandidate)
	if !ok || got != targetCandidate {
		t.Fatalf("expected steered target candidate, got %v ok=%v", got, ok)
	}

	// consumed: asking again should come back empty.
	if _, ok := s.GetIntroduceCandidate(senderCandidate); ok {
		t.Fatal("expected steered target consumed after first read")
	}
}

func TestSteering_FallsBackToCandidateByMID(t *testing.T) {
	r := newTestRegistry(framework.MID{}, nil)
	s := NewSteering(r)

	targetMID := framework.MID{3}
	targetCandidate := framework.NewCandidate(framework.Address{Host: "fallback-target"}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, nil)
	s.CandidateByMID = func(mid framework.MID) (framework.WalkCandidate, bool) {
		if mid == targetMID {
			return targetCandidate, true
		}
		return nil, false
	}

	senderMID := framework.MID{1}
	s.OnIntroductionRequest(senderMID, &targetMID)

	senderMember := framework.NewMember(senderMID, nil)
	senderCandidate := framework.NewCandidate(framework.Address{}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, senderMember)
	got, ok := s.GetIntroduceCandidate(senderCandidate)
	if !ok || got != targetCandidate {
		t.Fatalf("expected fallback-resolved candidate, got %v ok=%v", got, ok)
	}
}

func TestSteering_GetIntroduceCandidateUnidentifiedCallerFalse(t *testing.T) {
	r := newTestRegistry(framework.MID{}, nil)
	s := NewSteering(r)
	unidentified := framework.NewCandidate(framework.Address{}, framework.Address{}, framework.Address{}, false, framework.ConnectionUnknown, nil)
	if _, ok := s.GetIntroduceCandidate(unidentified); ok {
		t.Fatal("expected false for a candidate with no known member")
	}
}
