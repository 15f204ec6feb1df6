// Package passgen derives reproducible passwords from a service name and the
// store's content key, and encodes digests into restricted alphabets.
package passgen

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the longest password Generate can produce: one character per
// byte of a SHA-256 digest.
const MaxLength = sha256.Size

var (
	// ErrLengthTooLong is returned when more characters are requested than
	// the digest can supply.
	ErrLengthTooLong = errors.New("requested length exceeds digest size")
	// ErrUnknownTextMode is returned for unrecognized alphabet modes.
	ErrUnknownTextMode = errors.New("unknown text mode")
)

// TextMode selects the alphabet generated passwords are drawn from.
type TextMode uint8

const (
	// AlphaNumeric is 0-9, A-Z, a-z.
	AlphaNumeric TextMode = iota
	// AlphaNumericUnderscore is AlphaNumeric plus '_'.
	AlphaNumericUnderscore
	// NoWhiteSpace is every byte from '0' through '~'.
	NoWhiteSpace
)

var textModeNames = map[TextMode]string{
	AlphaNumeric:           "alphanumeric",
	AlphaNumericUnderscore: "alphanumeric-underscore",
	NoWhiteSpace:           "no-whitespace",
}

func (m TextMode) String() string {
	if s, ok := textModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("TextMode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m TextMode) Valid() bool {
	_, ok := textModeNames[m]
	return ok
}

// ParseTextMode accepts the names printed by String, case-insensitively.
func ParseTextMode(s string) (TextMode, error) {
	for m, name := range textModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownTextMode)
}

var alphabets = map[TextMode][]byte{
	AlphaNumeric:           alphaNumeric(),
	AlphaNumericUnderscore: append(alphaNumeric(), '_'),
	NoWhiteSpace:           byteRange('0', '~'),
}

func alphaNumeric() []byte {
	var a []byte
	a = append(a, byteRange('0', '9')...)
	a = append(a, byteRange('A', 'Z')...)
	return append(a, byteRange('a', 'z')...)
}

func byteRange(first, last byte) []byte {
	r := make([]byte, 0, int(last-first)+1)
	for c := first; c <= last; c++ {
		r = append(r, c)
	}
	return r
}

// Alphabet returns a copy of the characters mode draws from.
func Alphabet(mode TextMode) ([]byte, error) {
	a, ok := alphabets[mode]
	if !ok {
		return nil, fmt.Errorf("%v: %w", mode, ErrUnknownTextMode)
	}
	return append([]byte(nil), a...), nil
}

// Encode maps the first length bytes of data into mode's alphabet. Each byte
// b selects alphabet[b*len(alphabet)/256].
func Encode(data []byte, mode TextMode, length int) (string, error) {
	if length > len(data) {
		return "", fmt.Errorf("length %d with %d bytes of input: %w", length, len(data), ErrLengthTooLong)
	}
	a, ok := alphabets[mode]
	if !ok {
		return "", fmt.Errorf("%v: %w", mode, ErrUnknownTextMode)
	}
	var sb strings.Builder
	sb.Grow(length)
	for _, b := range data[:length] {
		sb.WriteByte(a[int(b)*len(a)/256])
	}
	return sb.String(), nil
}

// Generate returns the deterministic password for a service:
//
//	h1     = SHA-256(name)
//	digest = SHA-256(nonce || h1 || contentKey)
//
// encoded with Encode. Bumping nonce is the only way to obtain a new
// password for the same name and key.
func Generate(name string, contentKey []byte, nonce uint8, length uint8, mode TextMode) (string, error) {
	if int(length) > MaxLength {
		return "", fmt.Errorf("length %d: %w", length, ErrLengthTooLong)
	}
	h1 := sha256.Sum256([]byte(name))

	h := sha256.New()
	h.Write([]byte{nonce})
	h.Write(h1[:])
	h.Write(contentKey)
	return Encode(h.Sum(nil), mode, int(length))
}
