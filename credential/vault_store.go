package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Vault configuration errors
var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
}

// VaultStore keeps the key in a KV version 2 secrets engine, in the field
// named StorageKey of the secret at Mount/Path.
type VaultStore struct {
	kv   *vault.KVv2
	path string
}

// NewVaultStore creates a Vault client and store.
func NewVaultStore(config VaultConfig) (*VaultStore, error) {
	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.Path == "" {
		config.Path = "characterchat"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	return &VaultStore{kv: client.KVv2(config.Mount), path: config.Path}, nil
}

func (s *VaultStore) Get(ctx context.Context) (string, error) {
	secret, err := s.kv.Get(ctx, s.path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return "", ErrNotSet
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key from vault: %w", err)
	}

	value, ok := secret.Data[StorageKey].(string)
	if !ok || value == "" {
		return "", ErrNotSet
	}
	return value, nil
}

func (s *VaultStore) Set(ctx context.Context, value string) error {
	if _, err := s.kv.Put(ctx, s.path, map[string]any{StorageKey: value}); err != nil {
		return fmt.Errorf("failed to write key to vault: %w", err)
	}
	return nil
}

// Delete removes every version of the secret.
func (s *VaultStore) Delete(ctx context.Context) error {
	if err := s.kv.DeleteMetadata(ctx, s.path); err != nil {
		return fmt.Errorf("failed to delete key from vault: %w", err)
	}
	return nil
}
