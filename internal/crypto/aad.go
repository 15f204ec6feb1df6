package icrypto

import (
	"encoding/binary"
)

const aadEnvelope = "ENVELOPE"

// AADEnvelope binds the plaintext header fields of an envelope to its
// ciphertext so that relabeling a file's kind or versions fails
// authentication.
func AADEnvelope(kind uint32, schemaVersion, cipherVersion uint16) []byte {
	return buildAAD(aadEnvelope, kind, schemaVersion, cipherVersion)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint32:
			res = binary.BigEndian.AppendUint32(res, v)
		case uint16:
			res = binary.BigEndian.AppendUint16(res, v)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}
