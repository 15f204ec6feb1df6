package encryptor

import "github.com/jmcleod/ironpass/internal/util"

// LegacyCBC is AES-256-CBC with zero padding and no authentication. It is
// kept so existing stores can be read and migrated; a wrong key is only
// noticed by the record's magic sentinel.
type LegacyCBC struct{}

var _ Encryptor = LegacyCBC{}

func (LegacyCBC) Version() uint16 { return VersionLegacyCBC }

func (LegacyCBC) Name() string { return "legacy-cbc" }

// Seal ignores aad.
func (LegacyCBC) Seal(key, plaintext, _ []byte) ([]byte, error) {
	return util.EncryptCBCZeroPad(plaintext, key)
}

// Open ignores aad. The returned plaintext keeps its zero padding.
func (LegacyCBC) Open(key, body, _ []byte) ([]byte, bool) {
	pt, err := util.DecryptCBCZeroPad(body, key)
	return pt, err == nil
}

func (LegacyCBC) DeriveKey(passphrase string) ([]byte, error) {
	return sha256Key(passphrase)
}
