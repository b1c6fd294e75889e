package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"characterchat/backend/character/repository"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*CharacterService, *testClock) {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewSQLiteCharacterRepository(context.Background(), db)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)}
	n := 0
	svc := NewCharacterService(repo, logger.Nop(),
		WithClock(clock.Now),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return svc, clock
}

func ptr[T any](v T) *T { return &v }

func TestCharacterService_Add(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)

	c, err := svc.Add(ctx, models.CreateCharacterRequest{Name: "  Ada ", Description: "Mathematician", AvatarIcon: "🧙‍♂️"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, clock.now.UnixMilli(), c.CreatedAt)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)

	// Duplicate names are allowed.
	_, err = svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "Another"})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCharacterService_AddValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		req   models.CreateCharacterRequest
		field string
	}{
		{name: "blank name", req: models.CreateCharacterRequest{Name: "  ", Description: "d"}, field: "name"},
		{name: "blank description", req: models.CreateCharacterRequest{Name: "n", Description: ""}, field: "description"},
		{name: "unknown icon", req: models.CreateCharacterRequest{Name: "n", Description: "d", AvatarIcon: "🍕"}, field: "avatarIcon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCharacterService_Update(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t)

	c, err := svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "Mathematician", Personality: "curious"})
	require.NoError(t, err)

	// Same millisecond: UpdatedAt still advances.
	updated, err := svc.Update(ctx, c.ID, models.UpdateCharacterRequest{AvatarIcon: ptr(models.AvatarIcon("🐉"))})
	require.NoError(t, err)
	assert.Equal(t, models.AvatarIcon("🐉"), updated.AvatarIcon)
	assert.Equal(t, "curious", updated.Personality)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)
	assert.Greater(t, updated.UpdatedAt, c.UpdatedAt)

	clock.now = clock.now.Add(time.Minute)
	updated, err = svc.Update(ctx, c.ID, models.UpdateCharacterRequest{Name: ptr("Ada L."), Personality: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, clock.now.UnixMilli(), updated.UpdatedAt)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", stored.Name)
	assert.Empty(t, stored.Personality)
	assert.Equal(t, c.ID, stored.ID)

	_, err = svc.Update(ctx, c.ID, models.UpdateCharacterRequest{Description: ptr(" ")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, "missing", models.UpdateCharacterRequest{Name: ptr("x")})
	assert.True(t, IsNotFound(err))
}

func TestCharacterService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	c, err := svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "d"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))
	assert.True(t, IsNotFound(svc.Delete(ctx, c.ID)))
}

func TestCharacterService_ExportJSON(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, _ := svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "d1"})
	_, _ = svc.Add(ctx, models.CreateCharacterRequest{Name: "Bob", Description: "d2"})

	export, err := svc.Export(ctx, nil, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "characterchat-export-2025-03-14.json", export.Filename)
	assert.Equal(t, 2, export.Count)
	assert.Contains(t, string(export.Data), "\n  {\n    \"id\": \"id-1\"")

	export, err = svc.Export(ctx, []string{a.ID, "unknown"}, FormatJSON)
	require.NoError(t, err)
	var decoded []models.Character
	require.NoError(t, json.Unmarshal(export.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Ada", decoded[0].Name)
}

func TestCharacterService_ExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src, _ := newTestService(t)
			_, err := src.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "d1", Personality: "p", SystemPrompt: "sp", AvatarIcon: "🦄"})
			require.NoError(t, err)
			_, err = src.Add(ctx, models.CreateCharacterRequest{Name: "Bob", Description: "d2", AvatarURL: "https://example.com/bob.png"})
			require.NoError(t, err)

			export, err := src.Export(ctx, nil, format)
			require.NoError(t, err)

			dst, _ := newTestService(t)
			_, err = dst.Add(ctx, models.CreateCharacterRequest{Name: "Existing", Description: "x"})
			require.NoError(t, err)

			result, err := dst.Import(ctx, export.Data)
			require.NoError(t, err)
			assert.Equal(t, ImportResult{Success: true, Count: 2}, result)

			list, err := dst.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "Ada", list[1].Name)
			assert.Equal(t, "sp", list[1].SystemPrompt)
			assert.Equal(t, models.AvatarIcon("🦄"), list[1].AvatarIcon)
			assert.Equal(t, "https://example.com/bob.png", list[2].AvatarURL)
			assert.Equal(t, "id-2", list[1].ID, "imported characters get fresh ids")
		})
	}
}

func TestCharacterService_Import(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		want  ImportResult
		names []string
	}{
		{
			name:  "single object",
			data:  `{"name":"Ada","description":"d"}`,
			want:  ImportResult{Success: true, Count: 1},
			names: []string{"Ada"},
		},
		{
			name:  "skips invalid entries",
			data:  `[{"name":"Ada","description":"d"},{"name":"NoDesc"},{"name":5,"description":"d"},"junk",{"name":"Bob","description":"e","personality":7}]`,
			want:  ImportResult{Success: true, Count: 2},
			names: []string{"Ada", "Bob"},
		},
		{
			name:  "yaml list",
			data:  "- name: Ada\n  description: d\n- name: Bob\n  description: e\n",
			want:  ImportResult{Success: true, Count: 2},
			names: []string{"Ada", "Bob"},
		},
		{
			name:  "empty description",
			data:  `[{"name":"Ada","description":""},{"name":"Bob","description":null}]`,
			want:  ImportResult{Success: true, Count: 1},
			names: []string{"Ada"},
		},
		{
			name: "no valid entries",
			data: `[{"name":"Ada"}]`,
			want: ImportResult{Error: MsgNoValidCharacters},
		},
		{
			name: "empty array",
			data: `[]`,
			want: ImportResult{Error: MsgNoValidCharacters},
		},
		{
			name: "undecodable",
			data: "{\"name\": [unterminated\n\t- : :",
			want: ImportResult{Error: MsgInvalidFormat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newTestService(t)

			got, err := svc.Import(ctx, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			list, err := svc.List(ctx)
			require.NoError(t, err)
			var names []string
			for _, c := range list {
				names = append(names, c.Name)
				assert.Empty(t, c.Personality)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestCharacterService_ImportIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := repository.NewSQLiteCharacterRepository(ctx, db)
	require.NoError(t, err)

	// Every entry gets the same id, so the second insert violates uniqueness.
	svc := NewCharacterService(repo, logger.Nop(), WithIDGenerator(func() string { return "dup" }))

	got, err := svc.Import(ctx, []byte(`[{"name":"Ada","description":"d"},{"name":"Bob","description":"e"}]`))
	require.Error(t, err)
	assert.Equal(t, ImportResult{}, got)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCharacterService_ExportYAMLKeys(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Add(ctx, models.CreateCharacterRequest{Name: "Ada", Description: "d", SystemPrompt: "sp"})
	require.NoError(t, err)

	export, err := svc.Export(ctx, nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "characterchat-export-2025-03-14.yaml", export.Filename)

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(export.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "sp", decoded[0]["systemPrompt"])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	f, err = ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
