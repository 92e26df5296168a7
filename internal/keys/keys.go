// Package keys provides the process-wide identity and member-id
// derivation the tracker needs. Real signature verification is an
// explicit out-of-scope collaborator (spec.md §1); this package only
// selects between the two no-op crypto modes the CLI's --crypto flag
// exposes and derives MIDs from public keys the same way a verifying
// KeyProvider eventually would, so switching modes later needs no
// caller change.
package keys

import (
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	mh "github.com/multiformats/go-multihash"

	"github.com/Captain-Coder/dispersy/pkg/framework"
)

// Mode selects the crypto provider behavior, matching the tracker's
// --crypto CLI flag (spec.md §6).
type Mode string

const (
	// NoCrypto skips signing and verification entirely.
	NoCrypto Mode = "NoCrypto"
	// NoVerifyCrypto signs outgoing messages but never verifies
	// incoming ones, the default the original tracker shipped with.
	NoVerifyCrypto Mode = "NoVerifyCrypto"
)

// KeyProvider supplies the tracker's single process-wide keypair and
// derives MIDs from public keys.
type KeyProvider interface {
	Mode() Mode
	PrivateKey() crypto.PrivKey
	PublicKeyBytes() ([]byte, error)
	MID() (framework.MID, error)
}

type provider struct {
	mode Mode
	priv crypto.PrivKey
}

// NewProvider selects a KeyProvider for mode, loading or creating an
// Ed25519 keypair at keyPath (pkg/p2pnet/identity.go's
// LoadOrCreateIdentity pattern).
func NewProvider(mode Mode, keyPath string) (KeyProvider, error) {
	switch mode {
	case NoCrypto, NoVerifyCrypto:
	default:
		return nil, fmt.Errorf("unknown crypto mode %q", mode)
	}

	priv, err := LoadOrCreateIdentity(mode, keyPath)
	if err != nil {
		return nil, err
	}
	return &provider{mode: mode, priv: priv}, nil
}

func (p *provider) Mode() Mode                 { return p.mode }
func (p *provider) PrivateKey() crypto.PrivKey { return p.priv }

func (p *provider) PublicKeyBytes() ([]byte, error) {
	return crypto.MarshalPublicKey(p.priv.GetPublic())
}

// MID derives a MID as a multihash digest of the process's public key,
// truncated to framework.MIDSize — the data model's "20-byte digest of a
// peer's public key" (spec.md §3), expressed with the multiformats
// digest primitive rather than a raw sha1/sha256 call.
func (p *provider) MID() (framework.MID, error) {
	pub, err := p.PublicKeyBytes()
	if err != nil {
		return framework.MID{}, err
	}
	return MIDFromPublicKeyBytes(pub)
}

// MIDFromPublicKeyBytes multihash-digests raw public key bytes and
// truncates/pads to framework.MIDSize via framework.MIDFromPublicKey.
func MIDFromPublicKeyBytes(pub []byte) (framework.MID, error) {
	digest, err := mh.Sum(pub, mh.SHA2_256, -1)
	if err != nil {
		return framework.MID{}, fmt.Errorf("multihash digest: %w", err)
	}
	// mh.Sum's output is a self-describing multihash (varint code +
	// length prefix + digest); only the trailing digest bytes are the
	// actual hash, which is what the data model means by "digest of a
	// public key".
	decoded, err := mh.Decode(digest)
	if err != nil {
		return framework.MID{}, fmt.Errorf("multihash decode: %w", err)
	}
	return framework.MIDFromPublicKey(decoded.Digest), nil
}

// LoadOrCreateIdentity loads an Ed25519 private key from path, or
// generates one if the file doesn't exist yet (pkg/p2pnet/identity.go's
// LoadOrCreateIdentity pattern). In NoCrypto mode a freshly generated
// key is never persisted: nothing ever signs or verifies with it under
// that mode, so there's no benefit to a stable identity across restarts
// and skipping the write avoids leaving a pointless key file behind in
// --crypto=NoCrypto deployments. A NoCrypto run with an existing file
// still loads it rather than ignoring it, so toggling modes on an
// established state dir never discards the persisted identity.
func LoadOrCreateIdentity(mode Mode, path string) (crypto.PrivKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal key from %s: %w", path, err)
		}
		return priv, nil
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	if mode == NoCrypto {
		return priv, nil
	}

	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
	}
	return priv, nil
}
