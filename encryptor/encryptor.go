// Package encryptor defines the pluggable cipher schemes that seal record
// payloads. Every envelope header names the scheme that produced it by its
// cipher version, and a Registry resolves that version back to an
// implementation.
package encryptor

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	"github.com/jmcleod/ironpass/internal/util"
)

// Cipher versions as written in envelope headers.
const (
	VersionLegacyCBC uint16 = 1
	VersionAESGCM    uint16 = 2
	VersionXChaCha   uint16 = 3
)

// ErrUnknownVersion is returned when no registered scheme matches a cipher
// version or name.
var ErrUnknownVersion = errors.New("unknown encryptor")

// Encryptor seals and opens record payloads under a 32-byte key.
type Encryptor interface {
	// Version is the cipher version stored in envelope headers.
	Version() uint16
	// Name is a stable human-readable identifier.
	Name() string
	// Seal encrypts plaintext and returns the scheme-specific body
	// (nonce or IV followed by ciphertext).
	Seal(key, plaintext, aad []byte) ([]byte, error)
	// Open decrypts a body produced by Seal. It reports false when the key
	// is wrong, the body is malformed, or authentication fails.
	Open(key, body, aad []byte) ([]byte, bool)
	// DeriveKey maps a passphrase to the unlock key for identity records.
	DeriveKey(passphrase string) ([]byte, error)
}

// Authenticates reports whether e detects a wrong key or tampering on its
// own. When it does not, only the record sentinel can.
func Authenticates(e Encryptor) bool {
	return e.Version() != VersionLegacyCBC
}

// Argon2idParams configures the memory-hard unlock-key derivation.
type Argon2idParams = util.Argon2idParams

// DefaultArgon2idParams returns the parameters used by XChaCha when none are given.
func DefaultArgon2idParams() Argon2idParams {
	return util.DefaultArgon2idParams()
}

// Current returns the scheme new stores are written with.
func Current() Encryptor {
	return AESGCM{}
}

func sha256Key(passphrase string) ([]byte, error) {
	k := sha256.Sum256([]byte(util.Normalize(passphrase)))
	return k[:], nil
}

// Registry maps cipher versions to implementations.
type Registry struct {
	byVersion map[uint16]Encryptor
}

// NewRegistry returns a Registry holding encs. Later entries replace earlier
// ones with the same version.
func NewRegistry(encs ...Encryptor) *Registry {
	r := &Registry{byVersion: make(map[uint16]Encryptor, len(encs))}
	for _, e := range encs {
		r.Register(e)
	}
	return r
}

// Default returns a Registry holding every built-in scheme, XChaCha with
// default Argon2id parameters.
func Default() *Registry {
	return NewRegistry(LegacyCBC{}, AESGCM{}, MustXChaCha(DefaultArgon2idParams()))
}

// Register adds or replaces e.
func (r *Registry) Register(e Encryptor) {
	r.byVersion[e.Version()] = e
}

// Lookup resolves a header's cipher version.
func (r *Registry) Lookup(version uint16) (Encryptor, error) {
	e, ok := r.byVersion[version]
	if !ok {
		return nil, fmt.Errorf("cipher version %d: %w", version, ErrUnknownVersion)
	}
	return e, nil
}

// ByName resolves a scheme by its Name.
func (r *Registry) ByName(name string) (Encryptor, error) {
	for _, e := range r.byVersion {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownVersion)
}

// Names lists registered scheme names ordered by version.
func (r *Registry) Names() []string {
	versions := make([]uint16, 0, len(r.byVersion))
	for v := range r.byVersion {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		names = append(names, r.byVersion[v].Name())
	}
	return names
}
