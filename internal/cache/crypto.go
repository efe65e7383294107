package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt is returned when a ciphertext cannot be authenticated. Callers
// treat it as a cache miss.
var ErrDecrypt = errors.New("cache: payload decryption failed")

const (
	cryptoIterations = 100000
	cryptoKeyLen     = 32 // AES-256
	cryptoMagic      = "tgc1" // format version prefix

	// Key derivation salt. Static: uniqueness comes from the secret, and
	// the expensive PBKDF2 stretch runs once per process, not per payload.
	cryptoSalt = "tubegate-cache-v1"
)

// Cryptor encrypts persistent-tier payloads with AES-256-GCM. The key is
// stretched from the configured secret once at construction.
type Cryptor struct {
	aead cipher.AEAD
}

// NewCryptor creates a Cryptor from the configured secret. When secret is
// empty, a machine-specific secret is derived from the hostname so that
// cache files are at least not portable between hosts.
func NewCryptor(secret string) (*Cryptor, error) {
	if secret == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "tubegate-fallback"
		}
		secret = "tubegate:" + host
	}

	key := pbkdf2.Key([]byte(secret), []byte(cryptoSalt), cryptoIterations, cryptoKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Cryptor{aead: aead}, nil
}

// Seal encrypts plaintext. Output layout: magic || nonce || ciphertext.
func (c *Cryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, len(cryptoMagic)+len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, cryptoMagic...)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a sealed payload. Any structural or authentication failure
// returns ErrDecrypt.
func (c *Cryptor) Open(sealed []byte) ([]byte, error) {
	minLen := len(cryptoMagic) + c.aead.NonceSize()
	if len(sealed) < minLen {
		return nil, ErrDecrypt
	}
	if string(sealed[:len(cryptoMagic)]) != cryptoMagic {
		return nil, ErrDecrypt
	}

	nonce := sealed[len(cryptoMagic):minLen]
	ciphertext := sealed[minLen:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
