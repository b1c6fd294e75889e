package service

import (
	"context"
	"errors"
	"fmt"

	"characterchat/backend/credential"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/logger"
)

// CharacterSource looks up characters by id.
type CharacterSource interface {
	Get(ctx context.Context, id string) (*models.Character, error)
}

// CredentialSource returns the stored API key.
type CredentialSource interface {
	Get(ctx context.Context) (string, error)
}

// ChatService opens chat sessions against stored characters.
type ChatService struct {
	characters  CharacterSource
	credentials CredentialSource
	streamer    Streamer
	metrics     *Metrics
	log         *logger.Logger
}

// NewChatService creates a chat service. metrics may be nil.
func NewChatService(characters CharacterSource, credentials CredentialSource, streamer Streamer, metrics *Metrics, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &ChatService{
		characters:  characters,
		credentials: credentials,
		streamer:    streamer,
		metrics:     metrics,
		log:         log,
	}
}

// OpenSession loads the character and the stored key and starts an empty
// session. It returns ErrNoCredential when no key is stored.
func (s *ChatService) OpenSession(ctx context.Context, characterID string, opts ...Option) (*Session, error) {
	character, err := s.characters.Get(ctx, characterID)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.credentials.Get(ctx)
	if errors.Is(err, credential.ErrNotSet) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load API key: %w", err)
	}

	base := []Option{WithLogger(s.log), WithMetrics(s.metrics)}
	return NewSession(*character, apiKey, s.streamer, append(base, opts...)...)
}
