package icrypto

import "github.com/jmcleod/ironpass/internal/util"

const filenameKeyInfo = "ironpass:filename:v1"

// DeriveFilenameKey derives the key mixed into content-addressed filenames
// from the store's content key.
func DeriveFilenameKey(contentKey []byte) ([]byte, error) {
	return util.HKDF(contentKey, nil, []byte(filenameKeyInfo))
}
