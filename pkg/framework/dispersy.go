package framework

// Dispersy is the framework surface this module is written against
// (spec.md §6, "Framework-consumed contracts"). Message serialization,
// the candidate-walk scheduler and the wire codec live behind Send and
// Forward; this module never touches a socket directly.
type Dispersy interface {
	// Communities lists the local overlays, used by DiscoveryCommunity to
	// compute my_preferences().
	Communities() []Community

	// Send transmits messages to specific candidates. Order is preserved
	// within one candidate; no cross-candidate ordering is promised.
	Send(candidates []WalkCandidate, messages []Message) error

	// Forward hands messages to the framework's own routing (used for
	// messages whose destination is already encoded on the message, e.g.
	// introduction requests).
	Forward(messages []Message) error

	// CreateOrUpdateWalkCandidate registers or refreshes a candidate in
	// the framework's candidate table and returns the canonical instance.
	CreateOrUpdateWalkCandidate(sockAddr, lan, wan Address, tunnel bool, connType ConnectionType, existing WalkCandidate) WalkCandidate

	// CandidateByMID looks up a candidate in the framework's broader
	// candidate table by member id, independent of whether it's one of
	// the local overlay's own confirmed taste buddies. Used by
	// introduction steering to resolve an introduce_me_to target the
	// receiver hasn't talked taste with directly (spec.md §4.F).
	CandidateByMID(mid MID) (WalkCandidate, bool)

	// Timeline returns the framework's authorization timeline.
	Timeline() Timeline

	// SyncLookup looks up a previously stored packet by meta-message id
	// and member database id — used only by the destroy-evidence log to
	// recover a signer's identity packet (spec.md §4.H).
	SyncLookup(metaMessageID string, memberDBID int64) (packet []byte, ok bool)
}
