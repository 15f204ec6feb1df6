package util

import (
	"crypto/rand"
	"fmt"
)

// NewKey returns a fresh random 256-bit key.
func NewKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
