package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"characterchat/backend/internal/models"

	"gopkg.in/yaml.v3"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml", "yml" or "" (JSON).
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", &ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", s)}
	}
}

// Import failure messages
const (
	MsgNoValidCharacters = "No valid characters found in the file"
	MsgInvalidFormat     = "Invalid JSON format"
)

// Export is an encoded set of characters ready to download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
	Count       int
}

// ImportResult reports how an import went.
type ImportResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Export encodes the characters with the given ids, or all characters when
// ids is empty. Unknown ids are ignored.
func (s *CharacterService) Export(ctx context.Context, ids []string, format Format) (*Export, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	selected := all
	if len(ids) > 0 {
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
		selected = make([]models.Character, 0, len(ids))
		for _, c := range all {
			if wanted[c.ID] {
				selected = append(selected, c)
			}
		}
	}

	export := &Export{
		Filename: fmt.Sprintf("characterchat-export-%s.%s", s.now().UTC().Format("2006-01-02"), format),
		Count:    len(selected),
	}
	switch format {
	case FormatYAML:
		export.ContentType = "application/yaml"
		export.Data, err = yaml.Marshal(selected)
	default:
		export.ContentType = "application/json"
		export.Data, err = json.MarshalIndent(selected, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return export, nil
}

// Import adds every valid character in data, which may be a JSON or YAML
// array or a single object. Entries need a string name and a string
// description.
// Imported characters get fresh ids and timestamps and are stored together:
// a storage failure saves none of them and is returned as an error. Bad
// input is reported in the result.
func (s *CharacterService) Import(ctx context.Context, data []byte) (ImportResult, error) {
	entries, ok := decodeEntries(data)
	if !ok {
		return ImportResult{Error: MsgInvalidFormat}, nil
	}

	var valid []models.Character
	for _, entry := range entries {
		if c, ok := s.fromEntry(entry); ok {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return ImportResult{Error: MsgNoValidCharacters}, nil
	}

	if err := s.repo.CreateBatch(ctx, valid); err != nil {
		return ImportResult{}, fmt.Errorf("failed to store imported characters: %w", err)
	}

	s.log.Info("Characters imported", "count", len(valid), "skipped", len(entries)-len(valid))
	return ImportResult{Success: true, Count: len(valid)}, nil
}

func decodeEntries(data []byte) ([]any, bool) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		if yamlErr := yaml.Unmarshal(data, &decoded); yamlErr != nil {
			return nil, false
		}
	}
	if list, ok := decoded.([]any); ok {
		return list, true
	}
	return []any{decoded}, true
}

func (s *CharacterService) fromEntry(entry any) (models.Character, bool) {
	fields, ok := entry.(map[string]any)
	if !ok {
		return models.Character{}, false
	}
	name, ok := fields["name"].(string)
	if !ok {
		return models.Character{}, false
	}
	description, ok := fields["description"].(string)
	if !ok {
		return models.Character{}, false
	}

	now := s.now().UnixMilli()
	c := models.Character{
		ID:           s.newID(),
		Name:         strings.TrimSpace(name),
		Description:  strings.TrimSpace(description),
		Personality:  stringField(fields, "personality"),
		SystemPrompt: stringField(fields, "systemPrompt"),
		AvatarURL:    stringField(fields, "avatarUrl"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if icon := models.AvatarIcon(stringField(fields, "avatarIcon")); icon.Valid() {
		c.AvatarIcon = icon
	}
	return c, true
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
