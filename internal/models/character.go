package models

import "strings"

// AvatarIcon is one of the built-in emoji avatars a character can use
// instead of an uploaded image.
type AvatarIcon string

// AvatarIcons lists every selectable icon in display order.
var AvatarIcons = []AvatarIcon{
	"🤖", "🧙‍♂️", "🦊", "🐉", "👻", "🎭", "🦸‍♀️", "🧛",
	"🧜‍♀️", "🦹", "🧚", "👽", "🤴", "👸", "🧞", "🦄",
}

// Valid reports whether the icon is empty or one of AvatarIcons.
func (a AvatarIcon) Valid() bool {
	if a == "" {
		return true
	}
	for _, icon := range AvatarIcons {
		if icon == a {
			return true
		}
	}
	return false
}

// Character is a user-defined persona. Timestamps are Unix milliseconds so
// exported files stay interchangeable with the browser client.
type Character struct {
	Position     int64      `json:"-" yaml:"-" gorm:"autoIncrement;index"`
	ID           string     `json:"id" yaml:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string     `json:"name" yaml:"name" gorm:"not null"`
	Description  string     `json:"description" yaml:"description" gorm:"not null"`
	Personality  string     `json:"personality" yaml:"personality"`
	SystemPrompt string     `json:"systemPrompt" yaml:"systemPrompt"`
	AvatarURL    string     `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	AvatarIcon   AvatarIcon `json:"avatarIcon,omitempty" yaml:"avatarIcon,omitempty"`
	CreatedAt    int64      `json:"createdAt" yaml:"createdAt" gorm:"autoCreateTime:false"`
	UpdatedAt    int64      `json:"updatedAt" yaml:"updatedAt" gorm:"autoUpdateTime:false"`
}

// CreateCharacterRequest carries the user-editable fields of a new character.
type CreateCharacterRequest struct {
	Name         string     `json:"name" binding:"required"`
	Description  string     `json:"description" binding:"required"`
	Personality  string     `json:"personality"`
	SystemPrompt string     `json:"systemPrompt"`
	AvatarURL    string     `json:"avatarUrl"`
	AvatarIcon   AvatarIcon `json:"avatarIcon"`
}

// Normalize trims surrounding whitespace from the text fields.
func (r *CreateCharacterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Personality = strings.TrimSpace(r.Personality)
	r.SystemPrompt = strings.TrimSpace(r.SystemPrompt)
	r.AvatarURL = strings.TrimSpace(r.AvatarURL)
}

// UpdateCharacterRequest is a partial edit; nil fields are left untouched.
type UpdateCharacterRequest struct {
	Name         *string     `json:"name"`
	Description  *string     `json:"description"`
	Personality  *string     `json:"personality"`
	SystemPrompt *string     `json:"systemPrompt"`
	AvatarURL    *string     `json:"avatarUrl"`
	AvatarIcon   *AvatarIcon `json:"avatarIcon"`
}

// Empty reports whether the request would change nothing.
func (r UpdateCharacterRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Personality == nil &&
		r.SystemPrompt == nil && r.AvatarURL == nil && r.AvatarIcon == nil
}
