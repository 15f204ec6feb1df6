package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/passgen"
	"github.com/jmcleod/ironpass/record"
	"github.com/jmcleod/ironpass/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPass = "correcthorsebatterystaple"

type fakeClipboard struct {
	text string
}

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	c.text = text
	return nil
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	s, err := New(append([]Option{WithBaseDir(dir)}, opts...)...)
	require.NoError(t, err)
	return s
}

func initTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := newTestStore(t, opts...)
	_, err := s.Init(t.Context(), "alice", testPass, nil)
	require.NoError(t, err)
	return s
}

func contentKey(t *testing.T, s *Store) []byte {
	t.Helper()
	id, err := s.GetID(t.Context(), testPass)
	require.NoError(t, err)
	return id.Key[:]
}

func TestNew_BaseDir(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		s, err := New(WithBaseDir("/tmp/explicit"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/explicit", s.BaseDir())
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvBaseDir, "/tmp/from-env")
		s, err := New()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/from-env", s.BaseDir())
	})

	t.Run("home", func(t *testing.T) {
		t.Setenv(EnvBaseDir, "")
		t.Setenv("HOME", "/tmp/home")
		s, err := New()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/tmp/home", DefaultDirName), s.BaseDir())
	})

	t.Run("resolved once", func(t *testing.T) {
		t.Setenv(EnvBaseDir, "/tmp/first")
		s, err := New()
		require.NoError(t, err)
		t.Setenv(EnvBaseDir, "/tmp/second")
		assert.Equal(t, "/tmp/first", s.BaseDir())
	})
}

// Init on an empty store, then GetID returns the name and a 32-byte content key.
func TestInitAndGetID(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)

	empty, err := s.Empty()
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = s.GetID(ctx, testPass)
	require.ErrorIs(t, err, ErrNotInited)

	created, err := s.Init(ctx, "alice", testPass, []KV{{Key: "email", Value: "alice@example.test"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Name)

	id, err := s.GetID(ctx, testPass)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Name)
	assert.Len(t, id.Key, 32)
	assert.NotEqual(t, [32]byte{}, id.Key)
	assert.Equal(t, []KV{{Key: "email", Value: "alice@example.test"}}, id.KV)

	_, err = s.Init(ctx, "bob", testPass, nil)
	require.ErrorIs(t, err, ErrAlreadyInited)

	empty, err = s.Empty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestInit_ContentKeyIsRandom(t *testing.T) {
	a := initTestStore(t)
	b := initTestStore(t)
	assert.NotEqual(t, contentKey(t, a), contentKey(t, b))
}

func TestInit_Validation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Init(t.Context(), "", testPass, nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = s.Init(t.Context(), "alice", testPass, []KV{{Key: ""}})
	require.ErrorIs(t, err, ErrValidation)
}

// A generated password is reproducible from the name, nonce and content key.
func TestNewServiceAndGet(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	svc, err := s.NewService(ctx, "email", testPass, passgen.NoWhiteSpace, 16)
	require.NoError(t, err)

	want, err := passgen.Generate("email", contentKey(t, s), 0, 16, passgen.NoWhiteSpace)
	require.NoError(t, err)
	assert.Equal(t, want, svc.Pass)
	assert.Len(t, svc.Pass, 16)
	assert.Equal(t, uint8(0), svc.Nonce)

	got, err := s.Get(ctx, "email", testPass, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.NewService(ctx, "email", testPass, passgen.NoWhiteSpace, 16)
	require.ErrorIs(t, err, ErrExists)

	// Nothing on disk names the service.
	entries, err := os.ReadDir(s.BaseDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "email")
	}
}

func TestNewService_Options(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	svc, err := s.NewService(ctx, "bank", testPass, passgen.AlphaNumeric, 0,
		WithPassword("hunter2"),
		WithKVs(KV{Key: "user", Value: "alice"}),
		WithTags("money", "work", "money"),
	)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", svc.Pass)

	all, err := s.GetAll(ctx, "bank", testPass)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", all.Pass)
	assert.Equal(t, []KV{{Key: "user", Value: "alice"}}, all.KV)
	assert.Equal(t, []string{"money", "work"}, all.Tags)
	assert.True(t, all.SanityCheck())

	_, err = s.NewService(ctx, "x", testPass, passgen.AlphaNumeric, passgen.MaxLength+1)
	require.ErrorIs(t, err, ErrValidation)
	_, err = s.NewService(ctx, "x", testPass, passgen.AlphaNumeric, 8, WithTags("a,b"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestNewService_NotInited(t *testing.T) {
	s := newTestStore(t)
	_, err := s.NewService(t.Context(), "email", testPass, passgen.AlphaNumeric, 8)
	require.ErrorIs(t, err, ErrNotInited)
}

// Every cipher reports a wrong passphrase as ErrPasswordIncorrect.
func TestWrongPassphrase(t *testing.T) {
	ctx := t.Context()

	for _, enc := range []encryptor.Encryptor{encryptor.LegacyCBC{}, encryptor.AESGCM{}} {
		t.Run(enc.Name(), func(t *testing.T) {
			s := initTestStore(t, WithEncryptor(enc))
			_, err := s.NewService(ctx, "email", testPass, passgen.NoWhiteSpace, 16)
			require.NoError(t, err)

			pass, err := s.Get(ctx, "email", "wrongpass", false)
			require.ErrorIs(t, err, ErrPasswordIncorrect)
			assert.Empty(t, pass)

			_, err = s.List(ctx, "wrongpass")
			require.ErrorIs(t, err, ErrPasswordIncorrect)
			assert.False(t, s.Exists(ctx, "wrongpass", "email"))
		})
	}
}

// Rotating a generated password bumps the nonce and changes the password.
func TestUpgrade(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)
	_, err := s.NewService(ctx, "email", testPass, passgen.NoWhiteSpace, 16)
	require.NoError(t, err)

	oldPass, newPass, err := s.Upgrade(ctx, "email", testPass, "")
	require.NoError(t, err)
	assert.NotEqual(t, oldPass, newPass)

	want, err := passgen.Generate("email", contentKey(t, s), 1, 16, passgen.NoWhiteSpace)
	require.NoError(t, err)
	assert.Equal(t, want, newPass)

	got, err := s.Get(ctx, "email", testPass, false)
	require.NoError(t, err)
	assert.Equal(t, newPass, got)

	svc, err := s.GetAll(ctx, "email", testPass)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), svc.Nonce)

	t.Run("explicit", func(t *testing.T) {
		prev, next, err := s.Upgrade(ctx, "email", testPass, "manual-pass")
		require.NoError(t, err)
		assert.Equal(t, newPass, prev)
		assert.Equal(t, "manual-pass", next)

		svc, err := s.GetAll(ctx, "email", testPass)
		require.NoError(t, err)
		assert.Equal(t, "manual-pass", svc.Pass)
		assert.Equal(t, uint8(1), svc.Nonce, "explicit passwords do not consume a nonce")
	})

	t.Run("missing", func(t *testing.T) {
		_, _, err := s.Upgrade(ctx, "nope", testPass, "")
		require.ErrorIs(t, err, ErrNotExist)
	})

	t.Run("no generator", func(t *testing.T) {
		_, err := s.NewService(ctx, "manual", testPass, passgen.AlphaNumeric, 0, WithPassword("pw"))
		require.NoError(t, err)
		_, _, err = s.Upgrade(ctx, "manual", testPass, "")
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestUpgrade_NonceExhausted(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)
	_, err := s.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 8)
	require.NoError(t, err)

	sess, err := s.Unlock(ctx, testPass)
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.update(ctx, "email", func(_ []byte, svc *Service) error {
		svc.Nonce = 255
		return nil
	}))

	_, _, err = sess.Upgrade(ctx, "email", "")
	require.ErrorIs(t, err, ErrNonceExhausted)
}

func TestGet_Clipboard(t *testing.T) {
	ctx := t.Context()
	cb := &fakeClipboard{}
	s := initTestStore(t, WithClipboard(cb))
	svc, err := s.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 12)
	require.NoError(t, err)

	got, err := s.Get(ctx, "email", testPass, true)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, svc.Pass, cb.text)

	plain := initTestStore(t)
	_, err = plain.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 12)
	require.NoError(t, err)
	_, err = plain.Get(ctx, "email", testPass, true)
	require.ErrorIs(t, err, ErrNoClipboard)
}

func TestSetKVsAndTags(t *testing.T) {
	ctx := t.Context()
	tick := uint64(1000)
	s := initTestStore(t, WithClock(func() uint64 { tick++; return tick }))
	_, err := s.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 12, WithKVs(KV{Key: "user", Value: "alice"}))
	require.NoError(t, err)

	require.NoError(t, s.SetKVs(ctx, "email", testPass, []KV{{Key: "url", Value: "mail.test"}}, false))
	svc, err := s.GetAll(ctx, "email", testPass)
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: "url", Value: "mail.test"}, {Key: "user", Value: "alice"}}, svc.KV)
	assert.Greater(t, svc.ModifyTime, svc.CreateTime)

	require.NoError(t, s.SetKVs(ctx, "email", testPass, []KV{{Key: "only", Value: "one"}}, true))
	svc, err = s.GetAll(ctx, "email", testPass)
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: "only", Value: "one"}}, svc.KV)

	require.NoError(t, s.SetTags(ctx, "email", testPass, []string{"work", "mail"}, false))
	require.NoError(t, s.SetTags(ctx, "email", testPass, []string{"personal"}, false))
	svc, err = s.GetAll(ctx, "email", testPass)
	require.NoError(t, err)
	assert.Equal(t, []string{"mail", "personal", "work"}, svc.Tags)

	require.NoError(t, s.SetTags(ctx, "email", testPass, nil, true))
	svc, err = s.GetAll(ctx, "email", testPass)
	require.NoError(t, err)
	assert.Empty(t, svc.Tags)

	require.ErrorIs(t, s.SetKVs(ctx, "nope", testPass, nil, false), ErrNotExist)
	require.ErrorIs(t, s.SetTags(ctx, "nope", testPass, nil, false), ErrNotExist)
}

func TestListDeleteExists(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	names, err := s.List(ctx, testPass)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"zeta", "alpha", "mike"} {
		_, err := s.NewService(ctx, name, testPass, passgen.AlphaNumeric, 10)
		require.NoError(t, err)
	}

	names, err = s.List(ctx, testPass)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mike", "zeta"}, names)

	all, err := s.ListAll(ctx, testPass)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)

	assert.True(t, s.Exists(ctx, testPass, "mike"))
	require.NoError(t, s.Delete(ctx, "mike", testPass))
	assert.False(t, s.Exists(ctx, testPass, "mike"))
	require.ErrorIs(t, s.Delete(ctx, "mike", testPass), ErrNotExist)

	_, err = s.Get(ctx, "mike", testPass, false)
	require.ErrorIs(t, err, ErrNotExist)

	names, err = s.List(ctx, testPass)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestSetKVsID(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)
	keyBefore := contentKey(t, s)

	require.NoError(t, s.SetKVsID(ctx, testPass, []KV{{Key: "phone", Value: "555"}}, false))
	require.NoError(t, s.SetKVsID(ctx, testPass, []KV{{Key: "city", Value: "Oslo"}}, false))
	id, err := s.GetID(ctx, testPass)
	require.NoError(t, err)
	assert.Equal(t, []KV{{Key: "city", Value: "Oslo"}, {Key: "phone", Value: "555"}}, id.KV)
	assert.Equal(t, keyBefore, id.Key[:], "content key unchanged")

	require.NoError(t, s.SetKVsID(ctx, testPass, nil, true))
	id, err = s.GetID(ctx, testPass)
	require.NoError(t, err)
	assert.Empty(t, id.KV)

	require.ErrorIs(t, s.SetKVsID(ctx, "wrong", nil, true), ErrPasswordIncorrect)
}

func TestChangePassphrase(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)
	svc, err := s.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 12)
	require.NoError(t, err)

	filename, err := storage.Filename(contentKey(t, s), "email")
	require.NoError(t, err)
	before, err := os.ReadFile(s.Files().Path(filename))
	require.NoError(t, err)

	require.NoError(t, s.ChangePassphrase(ctx, testPass, "new passphrase"))

	after, err := os.ReadFile(s.Files().Path(filename))
	require.NoError(t, err)
	assert.Equal(t, before, after, "service files are untouched")

	_, err = s.Get(ctx, "email", testPass, false)
	require.ErrorIs(t, err, ErrPasswordIncorrect)

	got, err := s.Get(ctx, "email", "new passphrase", false)
	require.NoError(t, err)
	assert.Equal(t, svc.Pass, got)

	require.ErrorIs(t, s.ChangePassphrase(ctx, "wrong", "x"), ErrPasswordIncorrect)
}

func TestSession(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	sess, err := s.Unlock(ctx, testPass)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.IdentityName())

	_, err = sess.NewService(ctx, "email", passgen.AlphaNumeric, 12)
	require.NoError(t, err)
	ok, err := sess.Exists(ctx, "email")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, sess.ChangePassphrase(ctx, "rotated"))
	id, err := sess.Identity(ctx)
	require.NoError(t, err, "session follows its own passphrase change")
	assert.Equal(t, "alice", id.Name)

	sess.Close()
	_, err = sess.Get(ctx, "email", false)
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = sess.Identity(ctx)
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.Unlock(ctx, "rotated")
	require.NoError(t, err)
}

func TestCancelledContext(t *testing.T) {
	s := initTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Get(ctx, "email", testPass, false)
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Init(ctx, "x", testPass, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWrongSpecType(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	// Put an identity-kind file where the service "email" would live.
	filename, err := storage.Filename(contentKey(t, s), "email")
	require.NoError(t, err)
	idFile, err := os.ReadFile(s.Files().Path(storage.IdentityFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Files().Path(filename), idFile, 0o600))

	_, err = s.Get(ctx, "email", testPass, false)
	require.ErrorIs(t, err, ErrWrongSpecType)
}

func TestWrongEncryptVersion(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)

	legacy, err := New(WithBaseDir(s.BaseDir()), WithEncryptor(encryptor.LegacyCBC{}))
	require.NoError(t, err)
	_, err = legacy.GetID(ctx, testPass)
	require.ErrorIs(t, err, ErrWrongEncryptVersion)
}

func TestRecordsAreSealedWithCurrentSchema(t *testing.T) {
	ctx := t.Context()
	s := initTestStore(t)
	_, err := s.NewService(ctx, "email", testPass, passgen.AlphaNumeric, 12)
	require.NoError(t, err)

	kind := record.KindService
	current := record.CurrentServiceVersion
	names, err := s.Files().List(&kind, &current)
	require.NoError(t, err)
	assert.Len(t, names, 1)

	h, err := s.Files().ReadHeader(storage.IdentityFile)
	require.NoError(t, err)
	assert.Equal(t, storage.Header{Kind: record.KindIdentity, Schema: record.CurrentIdentityVersion, Cipher: encryptor.VersionAESGCM}, h)
}
