package main

import (
	"bytes"
	"context"
	"testing"

	"characterchat/backend/character/repository"
	charservice "characterchat/backend/character/service"
	chatservice "characterchat/backend/conversation/service"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCharacterService(t *testing.T) *charservice.CharacterService {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewSQLiteCharacterRepository(context.Background(), db)
	require.NoError(t, err)
	return charservice.NewCharacterService(repo, logger.Nop())
}

func TestResolveCharacter(t *testing.T) {
	ctx := context.Background()
	svc := newCharacterService(t)

	ada, err := svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "Mathematician"})
	require.NoError(t, err)

	got, err := resolveCharacter(ctx, svc, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)

	got, err = resolveCharacter(ctx, svc, "ada")
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)

	_, err = resolveCharacter(ctx, svc, "Grace")
	assert.ErrorContains(t, err, "no character")

	_, err = svc.Add(ctx, models.CreateCharacterRequest{Name: "ADA", Description: "Another"})
	require.NoError(t, err)
	_, err = resolveCharacter(ctx, svc, "Ada")
	assert.ErrorContains(t, err, "2 characters are named")
}

func snapshot(version uint64, msgs ...models.Message) chatservice.Snapshot {
	return chatservice.Snapshot{Version: version, Messages: msgs}
}

func TestReplyPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newReplyPrinter(&out, "Ada")

	user := models.Message{ID: "u1", Role: models.RoleUser, Content: "hi"}
	p.begin()
	p.onSnapshot(snapshot(1, user, models.Message{ID: "a1", Role: models.RoleAssistant}))
	p.onSnapshot(snapshot(2, user, models.Message{ID: "a1", Role: models.RoleAssistant, Content: "Hel"}))
	p.onSnapshot(snapshot(4, user, models.Message{ID: "a1", Role: models.RoleAssistant, Content: "Hello!"}))
	// Stale delivery is ignored.
	p.onSnapshot(snapshot(3, user, models.Message{ID: "a1", Role: models.RoleAssistant, Content: "Hello"}))
	p.report(chatservice.Result{Status: chatservice.StatusOK, Content: "Hello!"})

	assert.Contains(t, out.String(), "Hello!")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("Hello")))

	out.Reset()
	p.onSnapshot(snapshot(5, user, models.Message{ID: "a1", Role: models.RoleAssistant, Content: "Hello! More"}))
	assert.Empty(t, out.String(), "inactive printer must not write")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
