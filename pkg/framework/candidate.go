package framework

// WalkCandidate is the framework's view of a remote peer eligible for the
// introduction walk. Instances are owned by the framework's candidate
// table; this module holds references to them, never their lifetime
// (spec.md §3, Data Model).
type WalkCandidate interface {
	SockAddr() Address
	LANAddress() Address
	WANAddress() Address
	ConnectionType() ConnectionType
	Tunnel() bool

	// Member reports the candidate's associated member, when known. The
	// second return is false when the candidate hasn't been identified
	// yet (e.g. a freshly-resolved bootstrap seed).
	Member() (Member, bool)
}

// Member identifies a peer by the digest of its public key.
type Member interface {
	MID() MID
	PublicKey() []byte
}

// simpleCandidate is the concrete WalkCandidate used by the in-memory
// framework and by tests. Production deployments would receive these
// from the real Dispersy candidate table instead of constructing them.
type simpleCandidate struct {
	sockAddr Address
	lan      Address
	wan      Address
	connType ConnectionType
	tunnel   bool
	member   Member
}

// NewCandidate builds a concrete WalkCandidate. existing may be nil when
// the candidate hasn't been identified yet.
func NewCandidate(sockAddr, lan, wan Address, tunnel bool, connType ConnectionType, existing Member) WalkCandidate {
	return &simpleCandidate{
		sockAddr: sockAddr,
		lan:      lan,
		wan:      wan,
		connType: connType,
		tunnel:   tunnel,
		member:   existing,
	}
}

func (c *simpleCandidate) SockAddr() Address              { return c.sockAddr }
func (c *simpleCandidate) LANAddress() Address            { return c.lan }
func (c *simpleCandidate) WANAddress() Address            { return c.wan }
func (c *simpleCandidate) ConnectionType() ConnectionType { return c.connType }
func (c *simpleCandidate) Tunnel() bool                   { return c.tunnel }
func (c *simpleCandidate) Member() (Member, bool) {
	if c.member == nil {
		return nil, false
	}
	return c.member, true
}

// simpleMember is the concrete Member used by the in-memory framework.
type simpleMember struct {
	mid       MID
	publicKey []byte
}

func NewMember(mid MID, publicKey []byte) Member {
	return &simpleMember{mid: mid, publicKey: publicKey}
}

func (m *simpleMember) MID() MID          { return m.mid }
func (m *simpleMember) PublicKey() []byte { return m.publicKey }
