// Package vault is the boundary API of an ironpass store: a directory holding
// one identity record and any number of service records, all sealed under a
// passphrase.
//
// The passphrase derives an unlock key that opens the identity record. The
// identity carries a random content key that seals every service record and
// keys their filenames, so changing the passphrase rewrites only the
// identity.
package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/passgen"
	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/storage"
)

const (
	// EnvBaseDir overrides the default store directory.
	EnvBaseDir = "IRONPASS_BASEDIR"
	// DefaultDirName is the store directory under the user's home.
	DefaultDirName = ".ironpass"
)

type (
	// Identity is the decrypted identity record.
	Identity = record.Identity
	// Service is the decrypted service record.
	Service = record.Service
	// KV is one metadata pair.
	KV = record.KV
)

// Clipboard receives passwords for Get with toClipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Store is a handle on one store directory. It holds no key material; every
// operation takes the passphrase, or runs on an unlocked Session.
//
// A Store does not lock its directory. Callers sharing a directory across
// goroutines or processes must serialize writers themselves.
type Store struct {
	baseDir   string
	files     *storage.FileStore
	enc       encryptor.Encryptor
	registry  *encryptor.Registry
	clipboard Clipboard
	now       record.Clock
}

// New returns a Store. The base directory is resolved here once and not
// created until the first write.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		enc:      encryptor.Current(),
		registry: encryptor.Default(),
		now:      record.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.baseDir == "" {
		dir, err := DefaultBaseDir()
		if err != nil {
			return nil, err
		}
		s.baseDir = dir
	}
	s.registry.Register(s.enc)
	s.files = storage.NewFileStore(s.baseDir)
	return s, nil
}

// DefaultBaseDir returns $IRONPASS_BASEDIR, else ~/.ironpass.
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve store dir: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// BaseDir returns the store directory.
func (s *Store) BaseDir() string { return s.baseDir }

// Encryptor returns the current cipher.
func (s *Store) Encryptor() encryptor.Encryptor { return s.enc }

// Files exposes the underlying file store.
func (s *Store) Files() *storage.FileStore { return s.files }

// Init creates the identity record with a fresh content key.
func (s *Store) Init(ctx context.Context, identityName, passphrase string, kvs []KV) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(identityName, "identity name"); err != nil {
		return nil, err
	}
	if err := validateKVs(kvs); err != nil {
		return nil, err
	}
	ok, err := s.files.Exists(storage.IdentityFile)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyInited
	}

	id, err := newIdentity(identityName, kvs, s.now)
	if err != nil {
		return nil, err
	}
	if err := s.files.EnsureDir(); err != nil {
		return nil, err
	}
	if err := s.createIdentity(passphrase, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Unlock opens the identity and returns a Session holding the content key.
// Callers must Close it.
func (s *Store) Unlock(ctx context.Context, passphrase string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlockKey, err := s.enc.DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	id, err := s.loadIdentity(unlockKey)
	if err != nil {
		wipe(unlockKey)
		return nil, err
	}
	return newSession(s, id, unlockKey), nil
}

func (s *Store) withSession(ctx context.Context, passphrase string, fn func(*Session) error) error {
	sess, err := s.Unlock(ctx, passphrase)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

// NewService creates a service record. Unless WithPassword is given the
// password is generated from the name and content key.
func (s *Store) NewService(ctx context.Context, name, passphrase string, mode passgen.TextMode, length uint8, opts ...ServiceOption) (*Service, error) {
	var svc *Service
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		svc, err = sess.NewService(ctx, name, mode, length, opts...)
		return err
	})
	return svc, err
}

// Get returns the password for name. With toClipboard the password is handed
// to the configured Clipboard and "" is returned.
func (s *Store) Get(ctx context.Context, name, passphrase string, toClipboard bool) (string, error) {
	var pass string
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		pass, err = sess.Get(ctx, name, toClipboard)
		return err
	})
	return pass, err
}

// GetAll returns the full service record.
func (s *Store) GetAll(ctx context.Context, name, passphrase string) (*Service, error) {
	var svc *Service
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		svc, err = sess.GetAll(ctx, name)
		return err
	})
	return svc, err
}

// SetKVs replaces a service's metadata when reset is true and appends to it otherwise.
func (s *Store) SetKVs(ctx context.Context, name, passphrase string, kvs []KV, reset bool) error {
	return s.withSession(ctx, passphrase, func(sess *Session) error {
		return sess.SetKVs(ctx, name, kvs, reset)
	})
}

// SetTags replaces a service's tags when reset is true and adds to them otherwise.
func (s *Store) SetTags(ctx context.Context, name, passphrase string, tags []string, reset bool) error {
	return s.withSession(ctx, passphrase, func(sess *Session) error {
		return sess.SetTags(ctx, name, tags, reset)
	})
}

// Upgrade rotates a service's password. An empty explicit password
// regenerates with the next nonce; otherwise explicit is stored verbatim.
func (s *Store) Upgrade(ctx context.Context, name, passphrase, explicit string) (oldPass, newPass string, err error) {
	err = s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		oldPass, newPass, err = sess.Upgrade(ctx, name, explicit)
		return err
	})
	return oldPass, newPass, err
}

// Delete removes a service record.
func (s *Store) Delete(ctx context.Context, name, passphrase string) error {
	return s.withSession(ctx, passphrase, func(sess *Session) error {
		return sess.Delete(ctx, name)
	})
}

// List returns every service name, sorted.
func (s *Store) List(ctx context.Context, passphrase string) ([]string, error) {
	var names []string
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		names, err = sess.List(ctx)
		return err
	})
	return names, err
}

// ListAll returns every service record, sorted by name.
func (s *Store) ListAll(ctx context.Context, passphrase string) ([]*Service, error) {
	var all []*Service
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		all, err = sess.ListAll(ctx)
		return err
	})
	return all, err
}

// Exists reports whether name is stored. Any failure, including a wrong
// passphrase, reports false.
func (s *Store) Exists(ctx context.Context, passphrase, name string) bool {
	var ok bool
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		ok, err = sess.Exists(ctx, name)
		return err
	})
	return err == nil && ok
}

// Empty reports whether the store holds no records at all.
func (s *Store) Empty() (bool, error) {
	return s.files.Empty()
}

// GetID returns the identity record.
func (s *Store) GetID(ctx context.Context, passphrase string) (*Identity, error) {
	var id *Identity
	err := s.withSession(ctx, passphrase, func(sess *Session) error {
		var err error
		id, err = sess.Identity(ctx)
		return err
	})
	return id, err
}

// SetKVsID replaces the identity's metadata when reset is true and appends to it otherwise.
func (s *Store) SetKVsID(ctx context.Context, passphrase string, kvs []KV, reset bool) error {
	return s.withSession(ctx, passphrase, func(sess *Session) error {
		return sess.SetIdentityKVs(ctx, kvs, reset)
	})
}

// ChangePassphrase re-seals the identity under a new passphrase. Service
// files are untouched.
func (s *Store) ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	return s.withSession(ctx, oldPassphrase, func(sess *Session) error {
		return sess.ChangePassphrase(ctx, newPassphrase)
	})
}
