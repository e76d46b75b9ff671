// Package cryptox seals small secrets (wallet private keys) at rest using
// AES-GCM with an argon2id-derived key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const SaltSize = 16

// Sealer encrypts and decrypts byte blobs with a key derived once from a
// passphrase and a per-store salt.
type Sealer struct {
	key []byte
}

// NewSealer derives an AES-256 key from the passphrase using argon2id.
// The salt must be stable across restarts for previously sealed data to
// remain readable.
func NewSealer(passphrase, salt []byte) *Sealer {
	key := argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
	return &Sealer{key: key}
}

// MakeSalt returns a fresh random salt of SaltSize bytes.
func MakeSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("reading random salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plain and returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plain []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It fails if the blob was sealed with a different
// passphrase or was tampered with.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed blob: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("sealed blob too short")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening sealed blob: %w", err)
	}
	return plain, nil
}

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Useful for passphrases after key derivation.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
