package encryptor

import (
	"bytes"
	"testing"

	"github.com/jmcleod/ironpass/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1}

func allSchemes(t *testing.T) []Encryptor {
	t.Helper()
	x, err := NewXChaCha(fastParams)
	require.NoError(t, err)
	return []Encryptor{LegacyCBC{}, AESGCM{}, x}
}

func TestRoundTrip(t *testing.T) {
	plaintext := []byte("a serialized record payload")
	aad := []byte("header")

	for _, e := range allSchemes(t) {
		t.Run(e.Name(), func(t *testing.T) {
			key, err := util.NewKey()
			require.NoError(t, err)

			body, err := e.Seal(key, plaintext, aad)
			require.NoError(t, err)
			assert.False(t, bytes.Contains(body, plaintext))

			got, ok := e.Open(key, body, aad)
			require.True(t, ok)
			assert.Equal(t, plaintext, got[:len(plaintext)])
		})
	}
}

func TestSealUsesFreshRandomness(t *testing.T) {
	key, _ := util.NewKey()
	for _, e := range allSchemes(t) {
		t.Run(e.Name(), func(t *testing.T) {
			a, err := e.Seal(key, []byte("same"), nil)
			require.NoError(t, err)
			b, err := e.Seal(key, []byte("same"), nil)
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestAuthenticatedSchemesRejectWrongKey(t *testing.T) {
	key, _ := util.NewKey()
	other, _ := util.NewKey()
	aad := []byte("header")

	for _, e := range allSchemes(t)[1:] {
		t.Run(e.Name(), func(t *testing.T) {
			body, err := e.Seal(key, []byte("payload"), aad)
			require.NoError(t, err)

			_, ok := e.Open(other, body, aad)
			assert.False(t, ok, "wrong key")

			_, ok = e.Open(key, body, []byte("relabeled"))
			assert.False(t, ok, "wrong aad")

			_, ok = e.Open(key, body[:5], aad)
			assert.False(t, ok, "truncated")

			_, ok = e.Open([]byte("short"), body, aad)
			assert.False(t, ok, "bad key size")
		})
	}
}

func TestLegacyWrongKeyIsNotDetected(t *testing.T) {
	key, _ := util.NewKey()
	other, _ := util.NewKey()
	plaintext := []byte("payload without integrity")

	body, err := LegacyCBC{}.Seal(key, plaintext, nil)
	require.NoError(t, err)

	got, ok := LegacyCBC{}.Open(other, body, nil)
	require.True(t, ok, "CBC cannot tell a wrong key from a right one")
	assert.False(t, bytes.HasPrefix(got, plaintext))
}

func TestDeriveKey(t *testing.T) {
	for _, e := range allSchemes(t) {
		t.Run(e.Name(), func(t *testing.T) {
			k1, err := e.DeriveKey("correcthorsebatterystaple")
			require.NoError(t, err)
			assert.Len(t, k1, util.KeySize)

			k2, err := e.DeriveKey("correcthorsebatterystaple")
			require.NoError(t, err)
			assert.Equal(t, k1, k2)

			k3, err := e.DeriveKey("wrongpass")
			require.NoError(t, err)
			assert.NotEqual(t, k1, k3)
		})
	}

	t.Run("NormalizesPassphrase", func(t *testing.T) {
		k1, _ := AESGCM{}.DeriveKey("caf\u00e9")
		k2, _ := AESGCM{}.DeriveKey("cafe\u0301")
		assert.Equal(t, k1, k2)
	})

	t.Run("SchemesDisagree", func(t *testing.T) {
		x := MustXChaCha(fastParams)
		k1, _ := AESGCM{}.DeriveKey("pass")
		k2, _ := x.DeriveKey("pass")
		assert.NotEqual(t, k1, k2)
	})
}

func TestNewXChaCha_RejectsWeakParams(t *testing.T) {
	_, err := NewXChaCha(Argon2idParams{Time: 1, MemoryKiB: 16, Parallelism: 1})
	require.Error(t, err)
	assert.Panics(t, func() { MustXChaCha(Argon2idParams{}) })
}

func TestRegistry(t *testing.T) {
	r := Default()

	for _, v := range []uint16{VersionLegacyCBC, VersionAESGCM, VersionXChaCha} {
		e, err := r.Lookup(v)
		require.NoError(t, err)
		assert.Equal(t, v, e.Version())
	}

	_, err := r.Lookup(99)
	require.ErrorIs(t, err, ErrUnknownVersion)

	e, err := r.ByName("aes-gcm")
	require.NoError(t, err)
	assert.Equal(t, VersionAESGCM, e.Version())

	_, err = r.ByName("rot13")
	require.ErrorIs(t, err, ErrUnknownVersion)

	assert.Equal(t, []string{"legacy-cbc", "aes-gcm", "xchacha"}, r.Names())

	custom := MustXChaCha(fastParams)
	r.Register(custom)
	got, err := r.Lookup(VersionXChaCha)
	require.NoError(t, err)
	assert.Same(t, custom, got)

	assert.Equal(t, VersionAESGCM, Current().Version())
}

func TestAuthenticates(t *testing.T) {
	assert.False(t, Authenticates(LegacyCBC{}))
	assert.True(t, Authenticates(AESGCM{}))
	assert.True(t, Authenticates(MustXChaCha(fastParams)))
}
