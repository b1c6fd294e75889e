package credential

import (
	"context"
	"sync"
	"testing"

	"characterchat/backend/ai"
	"characterchat/backend/pkg/cache"
	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu     sync.Mutex
	result ai.KeyCheck
	keys   []string
}

func (f *fakeProber) Probe(_ context.Context, key string) ai.KeyCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.result
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-or-...wxyz", Mask("sk-or-v1-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "sk-or-...abc", Mask("abc"))
	assert.Equal(t, "", Mask(""))
}

func TestService_SetGetClear(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), &fakeProber{}, nil, logger.Nop())

	has, err := svc.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = svc.Get(ctx)
	assert.ErrorIs(t, err, ErrNotSet)

	assert.ErrorIs(t, svc.Set(ctx, "   "), ErrBlankKey)

	require.NoError(t, svc.Set(ctx, "  sk-or-v1-secret1234 \n"))
	key, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-secret1234", key)

	masked, err := svc.Masked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-...1234", masked)

	require.NoError(t, svc.Clear(ctx))
	has, err = svc.HasKey(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	masked, err = svc.Masked(ctx)
	require.NoError(t, err)
	assert.Empty(t, masked)
}

func TestService_ValidateUsesStoredKey(t *testing.T) {
	ctx := context.Background()
	prober := &fakeProber{result: ai.KeyCheck{Valid: true}}
	svc := NewService(NewMemoryStore(), prober, nil, logger.Nop())

	assert.Equal(t, ai.KeyCheck{Error: ai.MsgNoKey}, svc.Validate(ctx, ""))
	assert.Empty(t, prober.keys)

	require.NoError(t, svc.Set(ctx, "sk-or-stored"))
	assert.Equal(t, ai.KeyCheck{Valid: true}, svc.Validate(ctx, " "))
	assert.Equal(t, ai.KeyCheck{Valid: true}, svc.Validate(ctx, "sk-or-explicit"))
	assert.Equal(t, []string{"sk-or-stored", "sk-or-explicit"}, prober.keys)
}

func TestService_ValidateCachesDefinitiveResults(t *testing.T) {
	ctx := context.Background()
	checks := cache.New[ai.KeyCheck](cache.Options{})
	defer checks.Close()

	prober := &fakeProber{result: ai.KeyCheck{Error: ai.MsgInvalidKey}}
	svc := NewService(NewMemoryStore(), prober, checks, logger.Nop())

	svc.Validate(ctx, "bad")
	svc.Validate(ctx, "bad")
	assert.Len(t, prober.keys, 1)

	prober.result = ai.KeyCheck{Error: ai.MsgNetworkError}
	svc.Validate(ctx, "flaky")
	svc.Validate(ctx, "flaky")
	assert.Len(t, prober.keys, 3)
}
