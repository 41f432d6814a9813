// Package crypto seals data at rest with AES-256-GCM. It is used to encrypt the
// registry file, which maps chat accounts to Steam accounts.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrOpen is returned when sealed data cannot be authenticated or decoded.
var ErrOpen = errors.New("open sealed data: authentication or integrity check failed")

// Sealer encrypts and authenticates byte payloads.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// AESSealer implements Sealer with AES-256-GCM. Sealed output is base64 text
// in the form base64(nonce || ciphertext || tag), so it can live in a text file.
type AESSealer struct {
	aead cipher.AEAD
}

// NewAESSealer creates a sealer from a base64-encoded 32-byte key
// (generate one with: openssl rand -base64 32).
func NewAESSealer(base64Key string) (*AESSealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESSealer{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	raw := s.aead.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Open reverses Seal. Tampered or truncated input yields ErrOpen.
func (s *AESSealer) Open(sealed []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(sealed)))
	n, err := base64.StdEncoding.Decode(raw, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrOpen, err)
	}
	raw = raw[:n]
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", ErrOpen, len(raw))
	}
	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		// Don't expose internal error details
		return nil, ErrOpen
	}
	return plaintext, nil
}
