package record

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding sorts map keys, so V1 payloads serialize
	// reproducibly too.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}).DecMode(); err != nil {
		panic(err)
	}
}

// Marshal serializes rec into its canonical payload.
func Marshal(rec Record) ([]byte, error) {
	b, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s v%d: %w", ErrSerialization, rec.Kind(), rec.SchemaVersion(), err)
	}
	return b, nil
}

// newRecord returns an empty value of the registered schema.
func newRecord(kind Kind, version uint16) (Record, error) {
	switch {
	case kind == KindIdentity && version == 1:
		return &IdentityV1{}, nil
	case kind == KindIdentity && version == 2:
		return &IdentityV2{}, nil
	case kind == KindService && version == 1:
		return &ServiceV1{}, nil
	case kind == KindService && version == 2:
		return &ServiceV2{}, nil
	}
	return nil, fmt.Errorf("%s v%d: %w", kind, version, ErrUnknownVersion)
}

// Decode parses payload as the given schema. Bytes after the first CBOR item
// are ignored: the legacy cipher returns its zero padding with the plaintext.
func Decode(kind Kind, version uint16, payload []byte) (Record, error) {
	rec, err := newRecord(kind, version)
	if err != nil {
		return nil, err
	}
	if _, err := decMode.UnmarshalFirst(payload, rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s v%d: %w", ErrSerialization, kind, version, err)
	}
	return rec, nil
}
