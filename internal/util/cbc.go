package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// EncryptCBCZeroPad encrypts plainText with AES-256-CBC after padding it with
// zero bytes to the next block boundary. A whole block of zeros is appended
// when the input is already aligned. Returns iv || ciphertext.
//
// This scheme carries no integrity protection and exists only to read and
// write stores created before the AEAD envelope.
func EncryptCBCZeroPad(plainText, rawKey []byte) ([]byte, error) {
	if len(rawKey) != KeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), KeySize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	padded := make([]byte, len(plainText)+aes.BlockSize-len(plainText)%aes.BlockSize)
	copy(padded, plainText)

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// DecryptCBCZeroPad reverses EncryptCBCZeroPad. The zero padding is left in
// place; callers decode a self-delimiting payload from the front.
func DecryptCBCZeroPad(cipherText, rawKey []byte) ([]byte, error) {
	if len(rawKey) != KeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), KeySize)
	}
	if len(cipherText) < 2*aes.BlockSize || len(cipherText)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a whole number of blocks")
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	iv, body := cipherText[:aes.BlockSize], cipherText[aes.BlockSize:]
	plainText := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainText, body)
	return plainText, nil
}
