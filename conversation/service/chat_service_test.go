package service

import (
	"context"
	"errors"
	"testing"

	"characterchat/backend/character/repository"
	"characterchat/backend/credential"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCharacters map[string]models.Character

func (s stubCharacters) Get(_ context.Context, id string) (*models.Character, error) {
	c, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type stubCredential struct {
	key string
	err error
}

func (s stubCredential) Get(context.Context) (string, error) {
	return s.key, s.err
}

func TestChatService_OpenSession(t *testing.T) {
	characters := stubCharacters{"c1": ada}
	streamer := newFakeStreamer(call{fragments: []string{"hi"}})

	svc := NewChatService(characters, stubCredential{key: "sk-or-1234"}, streamer, nil, logger.Nop())
	s, err := svc.OpenSession(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", s.Character().Name)
	assert.Equal(t, StatusOK, s.Send(context.Background(), "hello").Status)
}

func TestChatService_OpenSessionErrors(t *testing.T) {
	characters := stubCharacters{"c1": ada}
	streamer := newFakeStreamer()

	_, err := NewChatService(characters, stubCredential{err: credential.ErrNotSet}, streamer, nil, logger.Nop()).
		OpenSession(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewChatService(characters, stubCredential{key: "k"}, streamer, nil, logger.Nop()).
		OpenSession(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	boom := errors.New("vault sealed")
	_, err = NewChatService(characters, stubCredential{err: boom}, streamer, nil, logger.Nop()).
		OpenSession(context.Background(), "c1")
	assert.ErrorIs(t, err, boom)
}
