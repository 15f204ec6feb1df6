package record

import (
	"fmt"
	"strings"
)

// IdentityV1 is the first identity schema. Metadata was an unordered map.
type IdentityV1 struct {
	_          struct{} `cbor:",toarray"`
	Magic      uint32
	Name       string
	Key        [32]byte
	KV         map[string]string
	CreateTime uint64
	ModifyTime uint64
}

func (*IdentityV1) Kind() Kind            { return KindIdentity }
func (*IdentityV1) SchemaVersion() uint16 { return 1 }
func (r *IdentityV1) RecordName() string  { return r.Name }
func (r *IdentityV1) SanityCheck() bool   { return r.Magic == IdentityMagic }

// Identity is the current identity schema. It carries the content key that
// every service record in the store is bound to.
type Identity struct {
	_          struct{} `cbor:",toarray"`
	Magic      uint32
	Name       string
	Key        [32]byte
	KV         []KV
	CreateTime uint64
	ModifyTime uint64
}

// IdentityV2 names the current schema explicitly for the upgrade chain.
type IdentityV2 = Identity

func (*Identity) Kind() Kind            { return KindIdentity }
func (*Identity) SchemaVersion() uint16 { return 2 }
func (r *Identity) RecordName() string  { return r.Name }
func (r *Identity) SanityCheck() bool   { return r.Magic == IdentityMagic }

// NewIdentity builds a current-schema identity around contentKey.
func NewIdentity(name string, contentKey [32]byte, kvs []KV, now Clock) *Identity {
	t := now()
	return &Identity{
		Magic:      IdentityMagic,
		Name:       name,
		Key:        contentKey,
		KV:         SortKVs(kvs),
		CreateTime: t,
		ModifyTime: t,
	}
}

// SetKVs replaces the metadata when reset is true and appends to it otherwise.
func (r *Identity) SetKVs(kvs []KV, reset bool, now Clock) {
	if reset {
		r.KV = SortKVs(kvs)
	} else {
		r.KV = AppendKVs(r.KV, kvs)
	}
	r.ModifyTime = touch(r.CreateTime, now)
}

// Touch bumps the modification time.
func (r *Identity) Touch(now Clock) {
	r.ModifyTime = touch(r.CreateTime, now)
}

func (r *Identity) Created() string  { return formatTime(r.CreateTime) }
func (r *Identity) Modified() string { return formatTime(r.ModifyTime) }

// String renders the identity without its key.
func (r *Identity) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "identity: %s\n", r.Name)
	for _, kv := range r.KV {
		fmt.Fprintf(&b, "  %s\n", kv)
	}
	fmt.Fprintf(&b, "created:  %s\nmodified: %s", r.Created(), r.Modified())
	return b.String()
}

func upgradeIdentityV1(rec Record) (Record, error) {
	v1 := rec.(*IdentityV1)
	return &IdentityV2{
		Magic:      v1.Magic,
		Name:       v1.Name,
		Key:        v1.Key,
		KV:         kvsFromMap(v1.KV),
		CreateTime: v1.CreateTime,
		ModifyTime: max(v1.ModifyTime, v1.CreateTime),
	}, nil
}
