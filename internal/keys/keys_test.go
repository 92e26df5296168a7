package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
)

func TestNewProvider_RejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")
	if _, err := NewProvider(Mode("bogus"), path); err == nil {
		t.Fatal("expected an error for an unrecognized crypto mode")
	}
}

func TestNewProvider_GeneratesThenPersistsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")

	p1, err := NewProvider(NoVerifyCrypto, path)
	if err != nil {
		t.Fatalf("NewProvider (create): %v", err)
	}
	if p1.Mode() != NoVerifyCrypto {
		t.Fatalf("Mode() = %v, want NoVerifyCrypto", p1.Mode())
	}
	pub1, err := p1.PublicKeyBytes()
	if err != nil {
		t.Fatalf("PublicKeyBytes: %v", err)
	}

	p2, err := NewProvider(NoVerifyCrypto, path)
	if err != nil {
		t.Fatalf("NewProvider (reload): %v", err)
	}
	pub2, err := p2.PublicKeyBytes()
	if err != nil {
		t.Fatalf("PublicKeyBytes (reload): %v", err)
	}

	if string(pub1) != string(pub2) {
		t.Fatal("expected the reloaded identity to match the one persisted on first run")
	}
}

func TestProvider_MIDIsDeterministicAndStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")
	p, err := NewProvider(NoCrypto, path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	mid1, err := p.MID()
	if err != nil {
		t.Fatalf("MID: %v", err)
	}
	mid2, err := p.MID()
	if err != nil {
		t.Fatalf("MID (again): %v", err)
	}
	if mid1 != mid2 {
		t.Fatal("expected MID() to be stable across repeated calls for the same key")
	}
}

func TestMIDFromPublicKeyBytes_DifferentKeysDifferentMIDs(t *testing.T) {
	privA, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		t.Fatalf("GenerateKeyPair A: %v", err)
	}
	privB, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		t.Fatalf("GenerateKeyPair B: %v", err)
	}

	pubA, err := crypto.MarshalPublicKey(privA.GetPublic())
	if err != nil {
		t.Fatalf("MarshalPublicKey A: %v", err)
	}
	pubB, err := crypto.MarshalPublicKey(privB.GetPublic())
	if err != nil {
		t.Fatalf("MarshalPublicKey B: %v", err)
	}

	midA, err := MIDFromPublicKeyBytes(pubA)
	if err != nil {
		t.Fatalf("MIDFromPublicKeyBytes A: %v", err)
	}
	midB, err := MIDFromPublicKeyBytes(pubB)
	if err != nil {
		t.Fatalf("MIDFromPublicKeyBytes B: %v", err)
	}
	if midA == midB {
		t.Fatal("expected distinct keys to derive distinct MIDs")
	}
}

func TestLoadOrCreateIdentity_CreatesFileWithRestrictedPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")
	if _, err := LoadOrCreateIdentity(NoVerifyCrypto, path); err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("identity file permissions = %o, want 0600", perm)
	}
}

func TestLoadOrCreateIdentity_NoCryptoNeverPersistsAFreshKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")
	if _, err := LoadOrCreateIdentity(NoCrypto, path); err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no key file written in NoCrypto mode, stat err = %v", err)
	}
}

func TestLoadOrCreateIdentity_NoCryptoStillLoadsAnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ec_multichain.pem")
	persisted, err := LoadOrCreateIdentity(NoVerifyCrypto, path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity (create): %v", err)
	}
	persistedPub, err := crypto.MarshalPublicKey(persisted.GetPublic())
	if err != nil {
		t.Fatalf("MarshalPublicKey: %v", err)
	}

	reloaded, err := LoadOrCreateIdentity(NoCrypto, path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity (reload under NoCrypto): %v", err)
	}
	reloadedPub, err := crypto.MarshalPublicKey(reloaded.GetPublic())
	if err != nil {
		t.Fatalf("MarshalPublicKey (reload): %v", err)
	}
	if string(persistedPub) != string(reloadedPub) {
		t.Fatal("expected NoCrypto to still load a previously persisted identity rather than discard it")
	}
}
