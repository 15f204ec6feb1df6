package storage

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/record"
)

// ErrDecryption is returned when an encryptor rejects a body.
var ErrDecryption = errors.New("decryption failed")

// Envelope is one sealed record: its plaintext header and encrypted body.
type Envelope struct {
	Header
	Body []byte
}

// Seal serializes rec and encrypts it under key with enc. The header records
// rec's kind and schema and enc's cipher version.
func Seal(enc encryptor.Encryptor, key []byte, rec record.Record) (*Envelope, error) {
	payload, err := record.Marshal(rec)
	if err != nil {
		return nil, err
	}
	h := Header{Kind: rec.Kind(), Schema: rec.SchemaVersion(), Cipher: enc.Version()}
	body, err := enc.Seal(key, payload, h.AAD())
	if err != nil {
		return nil, fmt.Errorf("seal %s: %w", h, err)
	}
	return &Envelope{Header: h, Body: body}, nil
}

// Open decrypts env with enc and returns the raw payload.
func Open(env *Envelope, enc encryptor.Encryptor, key []byte) ([]byte, error) {
	if env.Cipher != enc.Version() {
		return nil, fmt.Errorf("%w: envelope cipher %d, encryptor %s", ErrDecryption, env.Cipher, enc.Name())
	}
	payload, ok := enc.Open(key, env.Body, env.AAD())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDecryption, env.Header)
	}
	return payload, nil
}

// OpenRecord decrypts env and decodes the payload as the schema its header names.
func OpenRecord(env *Envelope, enc encryptor.Encryptor, key []byte) (record.Record, error) {
	payload, err := Open(env, enc, key)
	if err != nil {
		return nil, err
	}
	return record.Decode(env.Kind, env.Schema, payload)
}

// MarshalBinary returns the on-disk form: header then body.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, HeaderSize+len(e.Body))
	b = e.appendTo(b)
	return append(b, e.Body...), nil
}

// UnmarshalBinary splits a file's contents into header and body.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	if err := e.Header.UnmarshalBinary(b); err != nil {
		return err
	}
	e.Body = append([]byte(nil), b[HeaderSize:]...)
	return nil
}

// ParseEnvelope decodes the on-disk form.
func ParseEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := env.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return env, nil
}
