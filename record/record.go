// Package record defines the plaintext records kept in a store, their schema
// versions, and the canonical payload codec. Payloads are encrypted by an
// encryptor and framed by the storage envelope; this package never sees keys.
package record

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind identifies what a file holds. Values are written to the envelope header.
type Kind uint32

const (
	KindService  Kind = 0
	KindIdentity Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindIdentity:
		return "identity"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindService || k == KindIdentity
}

// Current schema versions. A new schema adds a struct, bumps the constant,
// and registers one upgrade step from the previous version.
const (
	CurrentIdentityVersion uint16 = 2
	CurrentServiceVersion  uint16 = 2
)

// CurrentVersion returns the schema version new records of kind k are
// written with.
func CurrentVersion(k Kind) uint16 {
	if k == KindIdentity {
		return CurrentIdentityVersion
	}
	return CurrentServiceVersion
}

// Sentinel values embedded in decrypted payloads.
const (
	IdentityMagic uint32 = 0xfedb1234
	ServiceMagic  uint32 = 0x83596235
)

var (
	// ErrSerialization wraps payload encode and decode failures.
	ErrSerialization = errors.New("record serialization failed")
	// ErrUnknownVersion is returned for a (kind, version) pair with no
	// registered schema.
	ErrUnknownVersion = errors.New("unknown record version")
)

// Record is any schema version of any kind.
type Record interface {
	Kind() Kind
	SchemaVersion() uint16
	RecordName() string
	// SanityCheck reports whether the embedded sentinel matches. A mismatch
	// after successful decryption means the wrong key was used.
	SanityCheck() bool
}

// KV is one metadata pair.
type KV struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Value string
}

func (kv KV) String() string {
	return kv.Key + "=" + kv.Value
}

// ParseKV splits "key=value". The value may be empty or contain '='.
func ParseKV(s string) (KV, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return KV{}, fmt.Errorf("invalid key/value %q: expected key=value", s)
	}
	return KV{Key: k, Value: v}, nil
}

func compareKV(a, b KV) int {
	if c := strings.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return strings.Compare(a.Value, b.Value)
}

// SortKVs returns a sorted copy of kvs with exact duplicates removed.
func SortKVs(kvs []KV) []KV {
	out := slices.Clone(kvs)
	slices.SortFunc(out, compareKV)
	return slices.CompactFunc(out, func(a, b KV) bool { return compareKV(a, b) == 0 })
}

// AppendKVs returns the sorted union of base and add. Keys may repeat; only
// identical pairs collapse.
func AppendKVs(base, add []KV) []KV {
	out := make([]KV, 0, len(base)+len(add))
	out = append(out, base...)
	return SortKVs(append(out, add...))
}

func kvsFromMap(m map[string]string) []KV {
	out := make([]KV, 0, len(m))
	for k, v := range m {
		out = append(out, KV{Key: k, Value: v})
	}
	return SortKVs(out)
}

// NormalizeTags trims, drops empties, deduplicates, and sorts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Clock supplies the current Unix time in seconds.
type Clock func() uint64

// SystemClock reads the wall clock.
func SystemClock() uint64 {
	return uint64(time.Now().Unix())
}

func touch(created uint64, now Clock) uint64 {
	return max(now(), created)
}

func formatTime(sec uint64) string {
	return time.Unix(int64(sec), 0).Local().Format(time.DateTime)
}
