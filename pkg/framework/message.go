package framework

// Message is the generic envelope this module exchanges with the
// framework. Real serialization, signing and verification are owned by
// the Dispersy conversion/authentication layers (out of scope); Payload
// carries whatever typed struct the sender attached to it.
type Message struct {
	Name          string
	Candidate     WalkCandidate // sender, nil for locally-originated messages
	Authenticator Member        // signer, nil for unauthenticated messages (ping/pong)
	GlobalTime    uint64
	Payload       any
	Packet        []byte // raw wire bytes, used only by the destroy-evidence log

	// CachingDisabled marks a message recovered from the destroy-evidence
	// log and replayed through Forward at startup: it must not be
	// re-cached or re-appended to the log it came from (spec.md §4.H).
	CachingDisabled bool
}

// Community is the minimal view of a local overlay the discovery protocol
// needs: its identifier and whether it participates in candidate walking.
type Community interface {
	CID() CID
	EnableCandidateWalker() bool
}

// Timeline exposes the framework's authorization check. A message is
// accepted only if the timeline's policy (authorize/revoke chain) permits
// it; otherwise Check returns the proof chain needed to delay or drop the
// message (spec.md §6, §7).
type Timeline interface {
	Check(msg Message) (accepted bool, proofs []Message)
}
