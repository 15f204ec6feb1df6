package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/jmcleod/ironpass/passgen"
	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/storage"
)

// Session holds the unlocked key material for a store. The content key and
// unlock key live in memguard enclaves and are only decrypted for the
// duration of one operation. Callers must call Close() when done
// (e.g. defer session.Close()).
type Session struct {
	store        *Store
	identityName string
	contentKey   *memguard.Enclave
	unlockKey    *memguard.Enclave
}

// newSession takes ownership of unlockKey and wipes it.
func newSession(s *Store, id *Identity, unlockKey []byte) *Session {
	ck := make([]byte, len(id.Key))
	copy(ck, id.Key[:])
	clear(id.Key[:])
	return &Session{
		store:        s,
		identityName: id.Name,
		contentKey:   memguard.NewEnclave(ck),
		unlockKey:    memguard.NewEnclave(unlockKey),
	}
}

// IdentityName returns the name recorded in the identity at unlock time.
func (s *Session) IdentityName() string {
	return s.identityName
}

// Close drops the session's key material. Further calls return ErrSessionClosed.
func (s *Session) Close() {
	s.contentKey = nil
	s.unlockKey = nil
}

func openEnclave(e *memguard.Enclave, label string, fn func([]byte) error) error {
	if e == nil {
		return ErrSessionClosed
	}
	buf, err := e.Open()
	if err != nil {
		return fmt.Errorf("opening %s enclave: %w", label, err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (s *Session) withContentKey(fn func(key []byte) error) error {
	return openEnclave(s.contentKey, "content key", fn)
}

func (s *Session) withUnlockKey(fn func(key []byte) error) error {
	return openEnclave(s.unlockKey, "unlock key", fn)
}

func (s *Session) loadService(key []byte, name string) (*Service, string, error) {
	filename, err := storage.Filename(key, name)
	if err != nil {
		return nil, "", err
	}
	ok, err := s.store.files.Exists(filename)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	rec, err := s.store.load(filename, record.KindService, key)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	svc, err := record.AsService(rec)
	if err != nil {
		return nil, "", err
	}
	return svc, filename, nil
}

func (s *Session) saveService(key []byte, filename string, svc *Service) error {
	env, err := storage.Seal(s.store.enc, key, svc)
	if err != nil {
		return err
	}
	return s.store.files.WriteFull(filename, env)
}

// NewService creates a service record.
func (s *Session) NewService(ctx context.Context, name string, mode passgen.TextMode, length uint8, opts ...ServiceOption) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name, "service name"); err != nil {
		return nil, err
	}
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateKVs(o.kvs); err != nil {
		return nil, err
	}
	if err := validateTags(o.tags); err != nil {
		return nil, err
	}
	if o.password == "" {
		if err := validateGenerator(mode, length); err != nil {
			return nil, err
		}
	} else if !mode.Valid() {
		return nil, validationErrorf("unknown text mode %d", mode)
	}

	var svc *Service
	err := s.withContentKey(func(key []byte) error {
		filename, err := storage.Filename(key, name)
		if err != nil {
			return err
		}
		ok, err := s.store.files.Exists(filename)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}

		svc = record.NewService(name, mode, length, o.kvs, o.tags, s.store.now)
		if o.password != "" {
			svc.Pass = o.password
		} else if svc.Pass, err = passgen.Generate(name, key, 0, length, mode); err != nil {
			return err
		}

		if err := s.store.files.EnsureDir(); err != nil {
			return err
		}
		env, err := storage.Seal(s.store.enc, key, svc)
		if err != nil {
			return err
		}
		if err := s.store.files.Create(filename, env); err != nil {
			if errors.Is(err, storage.ErrExists) {
				return fmt.Errorf("%s: %w", name, ErrExists)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// Get returns the password for name, or hands it to the store's Clipboard
// and returns "".
func (s *Session) Get(ctx context.Context, name string, toClipboard bool) (string, error) {
	svc, err := s.GetAll(ctx, name)
	if err != nil {
		return "", err
	}
	if !toClipboard {
		return svc.Pass, nil
	}
	if s.store.clipboard == nil {
		return "", ErrNoClipboard
	}
	if err := s.store.clipboard.SetText(ctx, svc.Pass); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	return "", nil
}

// GetAll returns the full service record.
func (s *Session) GetAll(ctx context.Context, name string) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var svc *Service
	err := s.withContentKey(func(key []byte) error {
		var err error
		svc, _, err = s.loadService(key, name)
		return err
	})
	return svc, err
}

func (s *Session) update(ctx context.Context, name string, fn func(key []byte, svc *Service) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withContentKey(func(key []byte) error {
		svc, filename, err := s.loadService(key, name)
		if err != nil {
			return err
		}
		if err := fn(key, svc); err != nil {
			return err
		}
		return s.saveService(key, filename, svc)
	})
}

// SetKVs replaces a service's metadata when reset is true and appends to it otherwise.
func (s *Session) SetKVs(ctx context.Context, name string, kvs []KV, reset bool) error {
	if err := validateKVs(kvs); err != nil {
		return err
	}
	return s.update(ctx, name, func(_ []byte, svc *Service) error {
		svc.SetKVs(kvs, reset, s.store.now)
		return nil
	})
}

// SetTags replaces a service's tags when reset is true and adds to them otherwise.
func (s *Session) SetTags(ctx context.Context, name string, tags []string, reset bool) error {
	if err := validateTags(tags); err != nil {
		return err
	}
	return s.update(ctx, name, func(_ []byte, svc *Service) error {
		svc.SetTags(tags, reset, s.store.now)
		return nil
	})
}

// Upgrade rotates a service's password and returns the old and new values.
// With explicit == "" the nonce is incremented and the password regenerated.
func (s *Session) Upgrade(ctx context.Context, name, explicit string) (oldPass, newPass string, err error) {
	err = s.update(ctx, name, func(key []byte, svc *Service) error {
		oldPass = svc.Pass
		if explicit != "" {
			newPass = explicit
		} else {
			if err := validateGenerator(svc.TextMode, svc.Len); err != nil {
				return err
			}
			if svc.Nonce == math.MaxUint8 {
				return fmt.Errorf("%s: %w", name, ErrNonceExhausted)
			}
			svc.Nonce++
			var err error
			if newPass, err = passgen.Generate(svc.Name, key, svc.Nonce, svc.Len, svc.TextMode); err != nil {
				return err
			}
		}
		svc.SetPassword(newPass, s.store.now)
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return oldPass, newPass, nil
}

// Delete removes a service record.
func (s *Session) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withContentKey(func(key []byte) error {
		filename, err := storage.Filename(key, name)
		if err != nil {
			return err
		}
		ok, err := s.store.files.Exists(filename)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrNotExist)
		}
		return s.store.files.Delete(filename)
	})
}

// Exists reports whether name is stored.
func (s *Session) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var ok bool
	err := s.withContentKey(func(key []byte) error {
		filename, err := storage.Filename(key, name)
		if err != nil {
			return err
		}
		ok, err = s.store.files.Exists(filename)
		return err
	})
	return ok, err
}

// ListAll decrypts every service record, upgrading stale ones, and returns
// them sorted by name.
func (s *Session) ListAll(ctx context.Context) ([]*Service, error) {
	kind := record.KindService
	filenames, err := s.store.files.List(&kind, nil)
	if err != nil {
		return nil, err
	}
	all := make([]*Service, 0, len(filenames))
	err = s.withContentKey(func(key []byte) error {
		for _, filename := range filenames {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.store.load(filename, record.KindService, key)
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			svc, err := record.AsService(rec)
			if err != nil {
				return err
			}
			all = append(all, svc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b *Service) int { return strings.Compare(a.Name, b.Name) })
	return all, nil
}

// List returns every service name, sorted.
func (s *Session) List(ctx context.Context) ([]string, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(all))
	for i, svc := range all {
		names[i] = svc.Name
	}
	return names, nil
}

// Identity re-reads the identity record.
func (s *Session) Identity(ctx context.Context) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var id *Identity
	err := s.withUnlockKey(func(key []byte) error {
		var err error
		id, err = s.store.loadIdentity(key)
		return err
	})
	return id, err
}

// SetIdentityKVs replaces the identity's metadata when reset is true and appends to it otherwise.
func (s *Session) SetIdentityKVs(ctx context.Context, kvs []KV, reset bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKVs(kvs); err != nil {
		return err
	}
	return s.withUnlockKey(func(key []byte) error {
		id, err := s.store.loadIdentity(key)
		if err != nil {
			return err
		}
		id.SetKVs(kvs, reset, s.store.now)
		return s.store.saveIdentity(key, id)
	})
}

// ChangePassphrase re-seals the identity under newPassphrase. The content key
// and every service file stay as they are.
func (s *Session) ChangePassphrase(ctx context.Context, newPassphrase string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	newKey, err := s.store.enc.DeriveKey(newPassphrase)
	if err != nil {
		return err
	}
	defer wipe(newKey)

	err = s.withUnlockKey(func(oldKey []byte) error {
		id, err := s.store.loadIdentity(oldKey)
		if err != nil {
			return err
		}
		id.Touch(s.store.now)
		return s.store.saveIdentity(newKey, id)
	})
	if err != nil {
		return err
	}
	s.unlockKey = memguard.NewEnclave(append([]byte(nil), newKey...))
	return nil
}
