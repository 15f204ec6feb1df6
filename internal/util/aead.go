package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of every symmetric key handled by the store.
const KeySize = 32

// ErrOpen is returned when an AEAD rejects a ciphertext.
var ErrOpen = errors.New("message authentication failed")

// NewGCM returns an AES-256-GCM AEAD for the given key.
func NewGCM(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != KeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), KeySize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// NewXChaCha returns an XChaCha20-Poly1305 AEAD for the given key.
func NewXChaCha(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != KeySize {
		return nil, fmt.Errorf("invalid XChaCha key size: got %d, want %d", len(rawKey), KeySize)
	}
	return chacha20poly1305.NewX(rawKey)
}

// SealAEAD encrypts plainText under a fresh random nonce and returns
// nonce || ciphertext.
func SealAEAD(aead cipher.AEAD, plainText, aad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plainText)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plainText, aad), nil
}

// OpenAEAD reverses SealAEAD.
func OpenAEAD(aead cipher.AEAD, cipherText, aad []byte) ([]byte, error) {
	if len(cipherText) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("ciphertext shorter than nonce and tag: %w", ErrOpen)
	}
	nonce, body := cipherText[:aead.NonceSize()], cipherText[aead.NonceSize():]
	plainText, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, ErrOpen
	}
	return plainText, nil
}
