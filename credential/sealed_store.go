package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sealed:v1:"

// ErrUnseal is returned when a stored value cannot be decrypted with the
// configured key.
var ErrUnseal = errors.New("failed to unseal stored API key")

// SealedStore encrypts values with NaCl secretbox before handing them to
// the underlying store. Values written before sealing was enabled are
// returned as-is.
type SealedStore struct {
	inner Store
	key   [32]byte
}

// NewSealedStore derives the box key from passphrase.
func NewSealedStore(inner Store, passphrase string) *SealedStore {
	return &SealedStore{inner: inner, key: blake2b.Sum256([]byte(passphrase))}
}

func (s *SealedStore) Get(ctx context.Context) (string, error) {
	stored, err := s.inner.Get(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(stored[len(sealedPrefix):])
	if err != nil || len(raw) < 24 {
		return "", ErrUnseal
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}

func (s *SealedStore) Set(ctx context.Context, value string) error {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return s.inner.Set(ctx, sealedPrefix+base64.RawStdEncoding.EncodeToString(sealed))
}

func (s *SealedStore) Delete(ctx context.Context) error {
	return s.inner.Delete(ctx)
}
