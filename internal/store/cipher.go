package store

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required session store key length.
const KeySize = chacha20poly1305.KeySize

// Cipher seals and opens store payloads with XChaCha20-Poly1305. A nil
// Cipher passes data through unchanged.
type Cipher struct {
	key []byte
}

// NewCipher wraps a 32-byte key. A nil or empty key yields a nil Cipher.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext, prepending a random nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	if c == nil {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal. Authentication failure is an error;
// callers must not fall back to stale or partial data.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce (%d bytes)", len(data))
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt session store: %w (wrong key or corrupted data)", err)
	}
	return plaintext, nil
}
