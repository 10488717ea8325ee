package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySalt holds the key derivation salt of a sealed store. It is stored in
// the clear next to the sealed blobs.
const KeySalt = "Store_Salt"

// Argon2id parameters for passphrase stretching.
const (
	saltSize     = 16
	keySize      = 32
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveKey stretches passphrase into an AES-256 key with Argon2id.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", saltSize, len(salt))
	}
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize), nil
}

// NewAEAD builds an AES-256-GCM cipher from a derived key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// SealedStore encrypts blobs before handing them to the wrapped Store.
// Stored layout: nonce || ciphertext. The key is bound as additional data
// so a blob cannot be replayed under another key.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealedStore wraps inner with encryption under passphrase. The salt is
// read from inner, or generated and written there on first use.
func NewSealedStore(ctx context.Context, inner Store, passphrase string) (*SealedStore, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt, err := loadSalt(ctx, inner)
	if err != nil {
		return nil, err
	}
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, err
	}
	return &SealedStore{inner: inner, aead: aead}, nil
}

func loadSalt(ctx context.Context, inner Store) ([]byte, error) {
	salt, err := inner.Get(ctx, KeySalt)
	switch {
	case err == nil:
		if len(salt) != saltSize {
			return nil, fmt.Errorf("corrupt salt: %d bytes", len(salt))
		}
		return salt, nil
	case errors.Is(err, ErrNotFound):
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := inner.Set(ctx, KeySalt, salt); err != nil {
			return nil, fmt.Errorf("write salt: %w", err)
		}
		return salt, nil
	default:
		return nil, fmt.Errorf("read salt: %w", err)
	}
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("open %s: blob too short", key)
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return plain, nil
}

func (s *SealedStore) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	return s.inner.Set(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)))
}

func (s *SealedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
