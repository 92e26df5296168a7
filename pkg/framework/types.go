// Package framework defines the contracts this module expects from the
// surrounding Dispersy host process: message serialization, signature
// verification, the candidate-walk scheduler and the wire codec all live
// on the other side of these interfaces and are not implemented here (see
// spec.md §1, "Out of scope: external collaborators only").
//
// A minimal in-memory implementation (memory.go) is provided so the
// overlay and tracker packages can be exercised end to end without a real
// Dispersy host, the same way libp2p consumers test against an in-process
// pair of hosts instead of a live network.
package framework

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// CIDSize and MIDSize are fixed by the wire format; both identifiers are
// 20-byte opaque tags (spec.md §3).
const (
	CIDSize = 20
	MIDSize = 20
)

// CID is a 20-byte overlay identifier. Equality is byte-equality.
type CID [CIDSize]byte

func (c CID) String() string { return fmt.Sprintf("%x", c[:]) }

// Hash64 returns a uniform 64-bit projection of the CID, suitable for use
// as a map key or a metrics label hash. It is not a cryptographic digest.
func (c CID) Hash64() uint64 { return xxhash.Sum64(c[:]) }

// MID is a 20-byte member identifier: a digest of a peer's public key.
type MID [MIDSize]byte

func (m MID) String() string { return fmt.Sprintf("%x", m[:]) }

func (m MID) Hash64() uint64 { return xxhash.Sum64(m[:]) }

// MIDFromPublicKey builds a MID from an already computed digest of a
// public key: a digest of at least MIDSize bytes is truncated, a shorter
// one is padded. It does no hashing of the key itself; internal/keys
// computes the digest with multihash.Sum. This helper exists so non-crypto callers
// (tests, simulations) can construct deterministic MIDs without pulling in
// a key provider.
func MIDFromPublicKey(digest []byte) MID {
	var mid MID
	if len(digest) >= MIDSize {
		copy(mid[:], digest[:MIDSize])
		return mid
	}
	// Pad short digests deterministically rather than silently truncating
	// to fewer meaningful bytes. The tail is filled 8 bytes at a time from
	// a keyed hash so it works for any digest shorter than MIDSize.
	n := copy(mid[:], digest)
	for seed := uint64(0); n < MIDSize; seed++ {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(append(digest, byte(seed))))
		n += copy(mid[n:], buf[:])
	}
	return mid
}

// ConnectionType mirrors the externally-observed NAT classification a
// WalkCandidate reports.
type ConnectionType string

const (
	ConnectionUnknown      ConnectionType = "unknown"
	ConnectionPublic       ConnectionType = "public"
	ConnectionSymmetricNAT ConnectionType = "symmetric-NAT"
)

// Address is a (host, port) UDP endpoint.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

func (a Address) IsZero() bool { return a.Host == "" && a.Port == 0 }

// Preference is a CID the local or remote peer participates in as a
// walker — i.e. an overlay that enables candidate walking.
type Preference = CID
