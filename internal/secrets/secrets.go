// Package secrets keeps mail credentials encrypted at rest. Ciphertext is
// secretbox-sealed with a per-value random nonce and base64-encoded for
// storage in a text column.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

type Store struct {
	key [32]byte
}

// NewStore builds a store from a base64-encoded 32-byte key.
func NewStore(encodedKey string) (*Store, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.New("secrets key is not valid base64")
	}
	if len(raw) != 32 {
		return nil, errors.New("secrets key must decode to 32 bytes")
	}

	s := &Store{}
	copy(s.key[:], raw)
	return s, nil
}

// Encrypt seals plaintext and returns a storable string.
func (s *Store) Encrypt(plaintext string) string {
	var nonce [nonceSize]byte
	rand.Read(nonce[:])

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed)
}

// Decrypt opens a stored ciphertext. The second return is false on any
// decode or authentication failure; callers treat that as "unconfigured"
// rather than an error.
func (s *Store) Decrypt(ciphertext string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", false
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", false
	}
	return string(plain), true
}
