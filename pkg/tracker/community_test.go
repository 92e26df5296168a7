package tracker

import (
	"testing"
	"time"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

func TestTrackerCommunity_NeverWalks(t *testing.T) {
	c := NewTrackerCommunity(framework.CID{1}, nil, nil)
	if c.EnableCandidateWalker() {
		t.Fatal("TrackerCommunity must never walk")
	}
	if err := c.TakeStep(); err != ErrTrackerDoesNotWalk {
		t.Fatalf("TakeStep() = %v, want ErrTrackerDoesNotWalk", err)
	}
}

func TestTrackerCommunity_ConversionIsIdempotent(t *testing.T) {
	c := NewTrackerCommunity(framework.CID{1}, nil, nil)
	if c.HasConversion(5) {
		t.Fatal("unexpected conversion present before EnsureConversion")
	}
	c.EnsureConversion(5)
	c.EnsureConversion(5)
	if !c.HasConversion(5) {
		t.Fatal("expected conversion present after EnsureConversion")
	}
	if c.HasConversion(6) {
		t.Fatal("unrelated version should not show a conversion")
	}
}

func TestTrackerCommunity_UpdateStrikesResetsOnVerifiedActivity(t *testing.T) {
	c := NewTrackerCommunity(framework.CID{1}, nil, nil)
	now := time.Now()

	if got := c.UpdateStrikes(now); got != 1 {
		t.Fatalf("expected strike 1 with no verified candidates, got %d", got)
	}
	if got := c.UpdateStrikes(now); got != 2 {
		t.Fatalf("expected strike 2, got %d", got)
	}

	c.MarkVerified(framework.Address{Host: "alive"})
	if got := c.UpdateStrikes(now); got != 0 {
		t.Fatalf("expected strikes reset to 0 after verified activity, got %d", got)
	}
	// the verified set is cleared each tick, so the next tick without
	// activity increments again.
	if got := c.UpdateStrikes(now); got != 1 {
		t.Fatalf("expected strike 1 again after verified set cleared, got %d", got)
	}
}

func TestTrackerCommunity_OnIntroductionRequestInstallsConversionAndMarksVerified(t *testing.T) {
	c := NewTrackerCommunity(framework.CID{1}, nil, nil)
	sender := framework.Address{Host: "peer", Port: 1}
	c.OnIntroductionRequest(sender, framework.MID{9}, 9, 3)

	if !c.HasConversion(3) {
		t.Fatal("expected conversion installed for observed community version")
	}
	if got := c.UpdateStrikes(time.Now()); got != 0 {
		t.Fatalf("expected strikes to stay at 0 after a fresh introduction request, got %d", got)
	}
}

func TestTrackerHardKilledCommunity_NeverWalksAndAlwaysStrikes(t *testing.T) {
	c := NewTrackerHardKilledCommunity(framework.CID{2}, nil)
	if c.EnableCandidateWalker() {
		t.Fatal("killed community must never walk")
	}
	if got := c.UpdateStrikes(time.Now()); got != 1 {
		t.Fatalf("expected unconditional strike increment, got %d", got)
	}
	if got := c.UpdateStrikes(time.Now()); got != 2 {
		t.Fatalf("expected unconditional strike increment again, got %d", got)
	}
}

func TestAcceptsMessage(t *testing.T) {
	if !AcceptsMessage("dispersy-destroy-community") {
		t.Fatal("expected dispersy-destroy-community in the tracker's minimum message set")
	}
	if AcceptsMessage("some-unknown-message") {
		t.Fatal("expected unknown message name to be rejected")
	}
}
