package vault

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/internal/util"
	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/storage"
)

func wipe(b []byte) {
	util.WipeBytes(b)
}

func newIdentity(name string, kvs []KV, now record.Clock) (*Identity, error) {
	key, err := util.NewKey()
	if err != nil {
		return nil, err
	}
	defer wipe(key)
	var contentKey [32]byte
	copy(contentKey[:], key)
	return record.NewIdentity(name, contentKey, kvs, now), nil
}

func (s *Store) createIdentity(passphrase string, id *Identity) error {
	unlockKey, err := s.enc.DeriveKey(passphrase)
	if err != nil {
		return err
	}
	defer wipe(unlockKey)

	env, err := storage.Seal(s.enc, unlockKey, id)
	if err != nil {
		return err
	}
	if err := s.files.Create(storage.IdentityFile, env); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return ErrAlreadyInited
		}
		return err
	}
	return nil
}

func (s *Store) loadIdentity(unlockKey []byte) (*Identity, error) {
	ok, err := s.files.Exists(storage.IdentityFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInited
	}
	rec, err := s.load(storage.IdentityFile, record.KindIdentity, unlockKey)
	if errors.Is(err, ErrDecryption) {
		// The identity is the first thing a passphrase opens, so an
		// authentication failure here is a wrong passphrase.
		return nil, fmt.Errorf("%w: %w", ErrPasswordIncorrect, err)
	}
	if err != nil {
		return nil, err
	}
	return record.AsIdentity(rec)
}

func (s *Store) saveIdentity(unlockKey []byte, id *Identity) error {
	env, err := storage.Seal(s.enc, unlockKey, id)
	if err != nil {
		return err
	}
	return s.files.WriteFull(storage.IdentityFile, env)
}

// load reads filename, checks its header, decrypts it under key, and brings
// it to the current schema.
func (s *Store) load(filename string, kind record.Kind, key []byte) (record.Record, error) {
	env, err := s.files.ReadFull(filename)
	if err != nil {
		return nil, err
	}
	if err := s.checkHeader(env.Header, kind); err != nil {
		return nil, err
	}
	rec, err := openRecord(env, s.enc, key)
	if err != nil {
		return nil, err
	}
	return s.checkUpgrade(filename, env.Header, rec, key)
}

// checkHeader rejects a file before any decryption is attempted.
func (s *Store) checkHeader(h storage.Header, kind record.Kind) error {
	if h.Kind != kind {
		return fmt.Errorf("%w: want %s, got %s", ErrWrongSpecType, kind, h.Kind)
	}
	if h.Cipher != s.enc.Version() {
		return fmt.Errorf("%w: want %d, got %d", ErrWrongEncryptVersion, s.enc.Version(), h.Cipher)
	}
	if current := record.CurrentVersion(kind); h.Schema > current {
		return fmt.Errorf("%w: %s schema %d, newest known %d", ErrVersionTooOld, kind, h.Schema, current)
	}
	return nil
}

// checkUpgrade returns rec in the current schema. A stale record is re-sealed
// and written back before returning, so each file is upgraded at most once.
func (s *Store) checkUpgrade(filename string, h storage.Header, rec record.Record, key []byte) (record.Record, error) {
	if h.Schema == record.CurrentVersion(h.Kind) {
		return rec, nil
	}
	up, err := record.Upgrade(rec)
	if err != nil {
		return nil, err
	}
	env, err := storage.Seal(s.enc, key, up)
	if err != nil {
		return nil, err
	}
	if err := s.files.WriteFull(filename, env); err != nil {
		return nil, fmt.Errorf("rewrite upgraded %s: %w", h.Kind, err)
	}
	return up, nil
}

// openRecord decrypts and decodes env, then checks the sentinel.
func openRecord(env *storage.Envelope, enc encryptor.Encryptor, key []byte) (record.Record, error) {
	payload, err := storage.Open(env, enc, key)
	if err != nil {
		return nil, err
	}
	rec, err := record.Decode(env.Kind, env.Schema, payload)
	if err != nil {
		if !encryptor.Authenticates(enc) {
			return nil, fmt.Errorf("%w: %w", ErrPasswordIncorrect, err)
		}
		return nil, err
	}
	if !rec.SanityCheck() {
		return nil, fmt.Errorf("%w: %s sentinel mismatch", ErrPasswordIncorrect, env.Kind)
	}
	return rec, nil
}
