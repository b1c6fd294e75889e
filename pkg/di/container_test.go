package di

import (
	"context"
	"testing"

	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("CREDENTIAL_STORE", "sqlite")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("METRICS_ENABLED", "true")
	return config.Load()
}

func TestNew_SQLite(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(t), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close(ctx)) })

	assert.NotNil(t, c.SQLite)
	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.MetricsHandler)
	assert.NotNil(t, c.KeyChecks)

	character, err := c.Characters.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "Mathematician"})
	require.NoError(t, err)

	require.NoError(t, c.Credentials.Set(ctx, "sk-or-v1-abcdef"))
	session, err := c.Chat.OpenSession(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", session.Character().Name)

	c.Health.RunChecks(ctx)
	assert.True(t, c.Health.IsSystemHealthy())
}

func TestNew_SealedStore(t *testing.T) {
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "correct horse battery staple")
	ctx := context.Background()
	c, err := New(ctx, testConfig(t), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NoError(t, c.Credentials.Set(ctx, "sk-or-v1-sealed"))

	var raw string
	require.NoError(t, c.SQLite.QueryRowContext(ctx, "SELECT value FROM settings").Scan(&raw))
	assert.NotContains(t, raw, "sk-or-v1-sealed")

	key, err := c.Credentials.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-sealed", key)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = config.DriverPostgres

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "CREDENTIAL_STORE=sqlite requires DB_DRIVER=sqlite")
}
