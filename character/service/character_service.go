package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"characterchat/backend/character/repository"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/logger"

	"github.com/google/uuid"
)

// ValidationError reports unusable character input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Option configures a CharacterService.
type Option func(*CharacterService)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CharacterService) { s.now = now }
}

// WithIDGenerator overrides character id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *CharacterService) { s.newID = newID }
}

type CharacterService struct {
	repo  repository.CharacterRepository
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

func NewCharacterService(repo repository.CharacterRepository, log *logger.Logger, opts ...Option) *CharacterService {
	if log == nil {
		log = logger.GetGlobal()
	}
	s := &CharacterService{
		repo:  repo,
		log:   log.WithComponent("characters"),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates input and stores a new character with a fresh id and equal
// created/updated timestamps.
func (s *CharacterService) Add(ctx context.Context, req models.CreateCharacterRequest) (*models.Character, error) {
	req.Normalize()
	if err := validate(req.Name, req.Description, req.AvatarIcon); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	character := &models.Character{
		ID:           s.newID(),
		Name:         req.Name,
		Description:  req.Description,
		Personality:  req.Personality,
		SystemPrompt: req.SystemPrompt,
		AvatarURL:    req.AvatarURL,
		AvatarIcon:   req.AvatarIcon,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, character); err != nil {
		return nil, err
	}

	s.log.Info("Character created", "id", character.ID, "name", character.Name)
	return character, nil
}

// Update applies the non-nil fields of req and refreshes UpdatedAt. The id
// and CreatedAt never change.
func (s *CharacterService) Update(ctx context.Context, id string, req models.UpdateCharacterRequest) (*models.Character, error) {
	character, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		character.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		character.Description = strings.TrimSpace(*req.Description)
	}
	if req.Personality != nil {
		character.Personality = strings.TrimSpace(*req.Personality)
	}
	if req.SystemPrompt != nil {
		character.SystemPrompt = strings.TrimSpace(*req.SystemPrompt)
	}
	if req.AvatarURL != nil {
		character.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.AvatarIcon != nil {
		character.AvatarIcon = *req.AvatarIcon
	}
	if err := validate(character.Name, character.Description, character.AvatarIcon); err != nil {
		return nil, err
	}

	character.UpdatedAt = s.touch(character.UpdatedAt)
	if err := s.repo.Update(ctx, character); err != nil {
		return nil, err
	}
	return character, nil
}

// Delete removes a character.
func (s *CharacterService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("Character deleted", "id", id)
	return nil
}

// Get returns one character or repository.ErrNotFound.
func (s *CharacterService) Get(ctx context.Context, id string) (*models.Character, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every character in creation order.
func (s *CharacterService) List(ctx context.Context) ([]models.Character, error) {
	return s.repo.GetAll(ctx)
}

// IsNotFound reports whether err means the character does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// touch returns a timestamp strictly after previous so every edit is
// observable even within the same millisecond.
func (s *CharacterService) touch(previous int64) int64 {
	now := s.now().UnixMilli()
	if now <= previous {
		return previous + 1
	}
	return now
}

func validate(name, description string, icon models.AvatarIcon) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "must not be blank"}
	}
	if strings.TrimSpace(description) == "" {
		return &ValidationError{Field: "description", Message: "must not be blank"}
	}
	if !icon.Valid() {
		return &ValidationError{Field: "avatarIcon", Message: "is not a known icon"}
	}
	return nil
}
