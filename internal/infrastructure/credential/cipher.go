// Package credential keeps OAuth tokens of warehouse accounts fresh. Refreshes of the
// same account are collapsed inside a process and serialized across processes, because
// the provider rotates the refresh token on every use.
package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextInvalid is returned when a stored value cannot be decrypted
var ErrCiphertextInvalid = errors.New("credential: ciphertext invalid")

// Cipher encrypts tokens at rest with XChaCha20-Poly1305. Output is
// base64(nonce || sealed).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a 32-byte key
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential: init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credential: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}
	return string(plain), nil
}

// SafeDecrypt returns the plaintext, or "" when the value cannot be decrypted
// (for example after a key rotation). Callers treat "" as a missing token.
func (c *Cipher) SafeDecrypt(ciphertext string) string {
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return ""
	}
	return plain
}
