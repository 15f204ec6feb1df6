package encryptor

import "github.com/jmcleod/ironpass/internal/util"

// AESGCM is AES-256-GCM with a random 96-bit nonce per record. The envelope
// header is authenticated as additional data.
type AESGCM struct{}

var _ Encryptor = AESGCM{}

func (AESGCM) Version() uint16 { return VersionAESGCM }

func (AESGCM) Name() string { return "aes-gcm" }

func (AESGCM) Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := util.NewGCM(key)
	if err != nil {
		return nil, err
	}
	return util.SealAEAD(gcm, plaintext, aad)
}

func (AESGCM) Open(key, body, aad []byte) ([]byte, bool) {
	gcm, err := util.NewGCM(key)
	if err != nil {
		return nil, false
	}
	pt, err := util.OpenAEAD(gcm, body, aad)
	return pt, err == nil
}

// DeriveKey hashes the normalized passphrase with SHA-256.
func (AESGCM) DeriveKey(passphrase string) ([]byte, error) {
	return sha256Key(passphrase)
}
