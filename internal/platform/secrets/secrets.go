// Package secrets seals provider credentials (API keys, auth tokens) before
// they are written to the API configuration store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values produced by Sealer.Seal so that rows written
// before a key was configured can still be read back verbatim.
const sealedPrefix = "enc:v1:"

// ErrNoKey is returned when a sealed value is read without a key.
var ErrNoKey = errors.New("secrets: value is sealed but no key is configured")

// Sealer encrypts and decrypts credential strings with AES-256-GCM. A nil
// key produces a pass-through Sealer for development setups.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer. key must be 32 bytes, or nil for pass-through.
func NewSealer(key []byte) (*Sealer, error) {
	if key == nil {
		return &Sealer{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create GCM: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Enabled reports whether the Sealer actually encrypts.
func (s *Sealer) Enabled() bool { return s.aead != nil }

// Seal encrypts plaintext and returns a prefixed base64 string with the nonce
// prepended to the ciphertext. Empty strings stay empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" || s.aead == nil {
		return plaintext, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s.aead == nil {
		return "", ErrNoKey
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("secrets: base64 decode: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("secrets: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plaintext), nil
}

// Mask shortens a credential for log output: the first four characters
// followed by an ellipsis.
func Mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + "..."
}
