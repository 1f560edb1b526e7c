// Package secrets stores IMAP/SMTP passwords encrypted at rest and hands them
// out by opaque reference for the duration of a single sync or send.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNotFound is returned when a secret reference does not exist
var ErrNotFound = errors.New("secret not found")

// Cipher seals secrets with XChaCha20-Poly1305. The random nonce is prepended to the ciphertext.
type Cipher struct {
	key []byte
}

// ParseKey accepts a 32-byte key encoded as hex or standard base64
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("secrets key is empty")
	}

	if key, err := hex.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	return nil, fmt.Errorf("secrets key must be %d bytes encoded as hex or base64", chacha20poly1305.KeySize)
}

// GenerateKey returns a fresh random key, used when running without persistence
func GenerateKey() []byte {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return key
}

// NewCipher creates a Cipher from a 32-byte key
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size %d, want %d", len(key), chacha20poly1305.KeySize)
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts plaintext. ref is bound as associated data so a ciphertext
// cannot be moved under another reference.
func (c *Cipher) Seal(ref, plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), []byte(ref)), nil
}

// Open decrypts a value produced by Seal
func (c *Cipher) Open(ref string, sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init aead: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(ref))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret %s: %w", ref, err)
	}
	return string(plaintext), nil
}
