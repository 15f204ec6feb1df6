// Package storage frames encrypted records on disk: an 8-byte plaintext
// header followed by an encryptor body, kept in a flat directory under
// content-addressed filenames.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	icrypto "github.com/jmcleod/ironpass/internal/crypto"
	"github.com/jmcleod/ironpass/record"
)

// HeaderSize is the length of the plaintext header on every file.
const HeaderSize = 8

var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("short envelope header")
	// ErrUnknownKind is returned when the header names no known record kind.
	ErrUnknownKind = errors.New("unknown record kind")
)

// Header describes a file without decrypting it.
type Header struct {
	Kind   record.Kind
	Schema uint16
	Cipher uint16
}

// MarshalBinary encodes kind, schema, and cipher version little-endian.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.appendTo(make([]byte, 0, HeaderSize)), nil
}

func (h Header) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Kind))
	b = binary.LittleEndian.AppendUint16(b, h.Schema)
	return binary.LittleEndian.AppendUint16(b, h.Cipher)
}

// UnmarshalBinary decodes the first HeaderSize bytes of b.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	kind := record.Kind(binary.LittleEndian.Uint32(b[0:4]))
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint32(kind))
	}
	h.Kind = kind
	h.Schema = binary.LittleEndian.Uint16(b[4:6])
	h.Cipher = binary.LittleEndian.Uint16(b[6:8])
	return nil
}

// ParseHeader decodes a header from the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	err := h.UnmarshalBinary(b)
	return h, err
}

// AAD returns the additional data AEAD schemes bind to the body.
func (h Header) AAD() []byte {
	return icrypto.AADEnvelope(uint32(h.Kind), h.Schema, h.Cipher)
}

func (h Header) String() string {
	return fmt.Sprintf("%s schema=%d cipher=%d", h.Kind, h.Schema, h.Cipher)
}
