package encryptor

import "github.com/jmcleod/ironpass/internal/util"

var xchachaSalt = []byte("ironpass:unlock:v3")

// XChaCha is XChaCha20-Poly1305 with a random 192-bit nonce per record. Its
// unlock key comes from Argon2id, so the identity record resists offline
// guessing better than with the SHA-256 schemes. The parameters are part of
// the scheme: opening a store requires the same ones it was written with.
type XChaCha struct {
	params Argon2idParams
}

var _ Encryptor = (*XChaCha)(nil)

// NewXChaCha validates params and returns the scheme.
func NewXChaCha(params Argon2idParams) (*XChaCha, error) {
	if err := util.ValidateArgon2idParams(params); err != nil {
		return nil, err
	}
	return &XChaCha{params: params}, nil
}

// MustXChaCha is NewXChaCha for parameters known to be valid.
func MustXChaCha(params Argon2idParams) *XChaCha {
	x, err := NewXChaCha(params)
	if err != nil {
		panic(err)
	}
	return x
}

func (*XChaCha) Version() uint16 { return VersionXChaCha }

func (*XChaCha) Name() string { return "xchacha" }

// Params returns the Argon2id parameters used by DeriveKey.
func (x *XChaCha) Params() Argon2idParams { return x.params }

func (*XChaCha) Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := util.NewXChaCha(key)
	if err != nil {
		return nil, err
	}
	return util.SealAEAD(aead, plaintext, aad)
}

func (*XChaCha) Open(key, body, aad []byte) ([]byte, bool) {
	aead, err := util.NewXChaCha(key)
	if err != nil {
		return nil, false
	}
	pt, err := util.OpenAEAD(aead, body, aad)
	return pt, err == nil
}

func (x *XChaCha) DeriveKey(passphrase string) ([]byte, error) {
	return util.DeriveArgon2idKey(util.Normalize(passphrase), xchachaSalt, x.params)
}
