// Package credential stores the user's gateway API key and checks it
// against the gateway.
package credential

import (
	"context"
	"errors"
	"sync"
)

// StorageKey is the fixed name the API key is stored under in every backend.
const StorageKey = "characterchat_openrouter_key"

// ErrNotSet is returned when no API key has been stored.
var ErrNotSet = errors.New("API key not set")

// Store persists a single secret value.
type Store interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, value string) error
	Delete(ctx context.Context) error
}

// MemoryStore keeps the key in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	value string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.value == "" {
		return "", ErrNotSet
	}
	return m.value, nil
}

func (m *MemoryStore) Set(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	return nil
}

func (m *MemoryStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = ""
	return nil
}
