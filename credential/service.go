package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"characterchat/backend/ai"
	"characterchat/backend/pkg/cache"
	"characterchat/backend/pkg/logger"

	"golang.org/x/crypto/blake2b"
)

// ErrBlankKey is returned when asked to store an empty key.
var ErrBlankKey = errors.New("API key must not be blank")

// Prober checks a key against the gateway. *ai.Prober implements it.
type Prober interface {
	Probe(ctx context.Context, apiKey string) ai.KeyCheck
}

// Service manages the stored API key.
type Service struct {
	store  Store
	prober Prober
	checks *cache.Cache[ai.KeyCheck]
	log    *logger.Logger
}

// NewService creates a credential service. checks may be nil to disable
// caching of validation results.
func NewService(store Store, prober Prober, checks *cache.Cache[ai.KeyCheck], log *logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Service{
		store:  store,
		prober: prober,
		checks: checks,
		log:    log.WithComponent("credential"),
	}
}

// Get returns the stored key or ErrNotSet.
func (s *Service) Get(ctx context.Context) (string, error) {
	return s.store.Get(ctx)
}

// Set stores key after trimming surrounding whitespace.
func (s *Service) Set(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrBlankKey
	}
	if err := s.store.Set(ctx, key); err != nil {
		return err
	}
	s.log.Info("API key stored", "key", Mask(key))
	return nil
}

// Clear removes the stored key.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil {
		return err
	}
	s.log.Info("API key cleared")
	return nil
}

// HasKey reports whether a key is stored.
func (s *Service) HasKey(ctx context.Context) (bool, error) {
	_, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotSet) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Masked returns the stored key in display form, or "" when none is stored.
func (s *Service) Masked(ctx context.Context) (string, error) {
	key, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotSet) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return Mask(key), nil
}

// Validate probes the gateway with key, or with the stored key when key is
// blank. Definitive answers are cached per key.
func (s *Service) Validate(ctx context.Context, key string) ai.KeyCheck {
	key = strings.TrimSpace(key)
	if key == "" {
		stored, err := s.store.Get(ctx)
		if err != nil && !errors.Is(err, ErrNotSet) {
			s.log.LogError(err, "Failed to load stored key for validation")
		}
		key = stored
	}
	if key == "" {
		return ai.KeyCheck{Error: ai.MsgNoKey}
	}

	fp := fingerprint(key)
	if s.checks != nil {
		if check, ok := s.checks.Get(fp); ok {
			return check
		}
	}

	check := s.prober.Probe(ctx, key)
	if s.checks != nil && check.Definitive() {
		s.checks.Set(fp, check)
	}
	return check
}

// Mask renders a key for display: a fixed prefix and the last four
// characters.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	tail := key
	if len(key) > 4 {
		tail = key[len(key)-4:]
	}
	return "sk-or-..." + tail
}

func fingerprint(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Describe returns a short status line for the stored key.
func (s *Service) Describe(ctx context.Context) (string, error) {
	masked, err := s.Masked(ctx)
	if err != nil {
		return "", err
	}
	if masked == "" {
		return "no API key stored", nil
	}
	return fmt.Sprintf("API key %s", masked), nil
}
