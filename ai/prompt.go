package ai

import (
	"strings"

	"characterchat/backend/internal/models"
)

// BuildSystemPrompt returns the system instruction for a character. An
// explicit system prompt wins; otherwise one is composed from the name,
// description and optional personality.
func BuildSystemPrompt(c *models.Character) string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}

	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(c.Name)
	b.WriteString(". ")
	b.WriteString(c.Description)
	if c.Personality != "" {
		b.WriteString("\n\nPersonality: ")
		b.WriteString(c.Personality)
	}
	return b.String()
}
