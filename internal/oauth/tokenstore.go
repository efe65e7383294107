package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/oauth2"
)

// ErrNoToken indicates no stored credential exists.
var ErrNoToken = errors.New("oauth: no stored token")

const (
	storeMagic      = "tgt1"
	storeIterations = 100000
	storeKeyLen     = 32
)

// TokenStore persists the OAuth2 token encrypted at rest (AES-256-GCM, key
// stretched from the configured secret with PBKDF2).
type TokenStore struct {
	path string
	aead cipher.AEAD
}

// NewTokenStore creates a store writing to path. An empty secret derives a
// machine-specific one from the hostname.
func NewTokenStore(path, secret string) (*TokenStore, error) {
	if secret == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "tubegate-fallback"
		}
		secret = "tubegate:" + host
	}

	key := pbkdf2.Key([]byte(secret), []byte("tubegate-token-v1"), storeIterations, storeKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &TokenStore{path: path, aead: aead}, nil
}

// Load reads and decrypts the stored token. Returns ErrNoToken when the
// file does not exist; decryption failures are reported as-is so callers
// can distinguish corruption from absence.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	minLen := len(storeMagic) + s.aead.NonceSize()
	if len(sealed) < minLen || string(sealed[:len(storeMagic)]) != storeMagic {
		return nil, fmt.Errorf("token file %s is not a sealed token", s.path)
	}

	nonce := sealed[len(storeMagic):minLen]
	plaintext, err := s.aead.Open(nil, nonce, sealed[minLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(plaintext, &tok); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &tok, nil
}

// Save encrypts and writes the token with owner-only permissions. The write
// goes through a temp file and rename so a crash never leaves a torn file.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	plaintext, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("serializing token: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	sealed := make([]byte, 0, len(storeMagic)+len(nonce)+len(plaintext)+s.aead.Overhead())
	sealed = append(sealed, storeMagic...)
	sealed = append(sealed, nonce...)
	sealed = s.aead.Seal(sealed, nonce, plaintext, nil)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// Delete removes the stored token. Absence is not an error.
func (s *TokenStore) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
