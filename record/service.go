package record

import (
	"fmt"
	"strings"

	"github.com/jmcleod/ironpass/passgen"
)

// ServiceV1 is the first service schema. It predates the magic constant; a
// zero Pad field is the sentinel.
type ServiceV1 struct {
	_          struct{} `cbor:",toarray"`
	Pad        uint16
	Name       string
	Pass       string
	Nonce      uint8
	KV         map[string]string
	Len        uint8
	TextMode   passgen.TextMode
	CreateTime uint64
	ModifyTime uint64
}

func (*ServiceV1) Kind() Kind            { return KindService }
func (*ServiceV1) SchemaVersion() uint16 { return 1 }
func (r *ServiceV1) RecordName() string  { return r.Name }
func (r *ServiceV1) SanityCheck() bool   { return r.Pad == 0 }

// Service is the current service schema: one named secret with metadata
// and tags.
type Service struct {
	_          struct{} `cbor:",toarray"`
	Magic      uint32
	Name       string
	Pass       string
	Nonce      uint8
	KV         []KV
	Tags       []string
	Len        uint8
	TextMode   passgen.TextMode
	CreateTime uint64
	ModifyTime uint64
}

// ServiceV2 names the current schema explicitly for the upgrade chain.
type ServiceV2 = Service

func (*Service) Kind() Kind            { return KindService }
func (*Service) SchemaVersion() uint16 { return 2 }
func (r *Service) RecordName() string  { return r.Name }
func (r *Service) SanityCheck() bool   { return r.Magic == ServiceMagic }

// NewService builds a current-schema service record. Pass is set by the caller.
func NewService(name string, mode passgen.TextMode, length uint8, kvs []KV, tags []string, now Clock) *Service {
	t := now()
	return &Service{
		Magic:      ServiceMagic,
		Name:       name,
		KV:         SortKVs(kvs),
		Tags:       NormalizeTags(tags),
		Len:        length,
		TextMode:   mode,
		CreateTime: t,
		ModifyTime: t,
	}
}

// SetKVs replaces the metadata when reset is true and appends to it otherwise.
func (r *Service) SetKVs(kvs []KV, reset bool, now Clock) {
	if reset {
		r.KV = SortKVs(kvs)
	} else {
		r.KV = AppendKVs(r.KV, kvs)
	}
	r.ModifyTime = touch(r.CreateTime, now)
}

// SetTags replaces the tags when reset is true and adds to them otherwise.
func (r *Service) SetTags(tags []string, reset bool, now Clock) {
	if reset {
		r.Tags = NormalizeTags(tags)
	} else {
		r.Tags = NormalizeTags(append(r.Tags, tags...))
	}
	r.ModifyTime = touch(r.CreateTime, now)
}

// HasTag reports whether tag is attached.
func (r *Service) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SetPassword stores pass and bumps the modification time.
func (r *Service) SetPassword(pass string, now Clock) {
	r.Pass = pass
	r.ModifyTime = touch(r.CreateTime, now)
}

func (r *Service) Created() string  { return formatTime(r.CreateTime) }
func (r *Service) Modified() string { return formatTime(r.ModifyTime) }

// String renders the service without its password.
func (r *Service) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "service: %s\n", r.Name)
	fmt.Fprintf(&b, "mode:    %s (len %d, nonce %d)\n", r.TextMode, r.Len, r.Nonce)
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, "tags:    %s\n", strings.Join(r.Tags, ", "))
	}
	for _, kv := range r.KV {
		fmt.Fprintf(&b, "  %s\n", kv)
	}
	fmt.Fprintf(&b, "created:  %s\nmodified: %s", r.Created(), r.Modified())
	return b.String()
}

func upgradeServiceV1(rec Record) (Record, error) {
	v1 := rec.(*ServiceV1)
	return &ServiceV2{
		Magic:      ServiceMagic,
		Name:       v1.Name,
		Pass:       v1.Pass,
		Nonce:      v1.Nonce,
		KV:         kvsFromMap(v1.KV),
		Tags:       []string{},
		Len:        v1.Len,
		TextMode:   v1.TextMode,
		CreateTime: v1.CreateTime,
		ModifyTime: max(v1.ModifyTime, v1.CreateTime),
	}, nil
}
