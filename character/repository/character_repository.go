package repository

import (
	"context"
	"errors"
	"fmt"

	"characterchat/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no character has the requested id.
var ErrNotFound = errors.New("character not found")

// CharacterRepository persists characters. GetAll returns them in creation
// order.
type CharacterRepository interface {
	Create(ctx context.Context, character *models.Character) error
	// CreateBatch stores all characters in one transaction, or none.
	CreateBatch(ctx context.Context, characters []models.Character) error
	GetByID(ctx context.Context, id string) (*models.Character, error)
	GetAll(ctx context.Context) ([]models.Character, error)
	Update(ctx context.Context, character *models.Character) error
	Delete(ctx context.Context, id string) error
}

type GormCharacterRepository struct {
	db *gorm.DB
}

func NewGormCharacterRepository(db *gorm.DB) *GormCharacterRepository {
	return &GormCharacterRepository{db: db}
}

// Migrate creates or updates the characters table.
func (r *GormCharacterRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.Character{}); err != nil {
		return fmt.Errorf("failed to migrate characters: %w", err)
	}
	return nil
}

func (r *GormCharacterRepository) Create(ctx context.Context, character *models.Character) error {
	return r.db.WithContext(ctx).Create(character).Error
}

func (r *GormCharacterRepository) CreateBatch(ctx context.Context, characters []models.Character) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range characters {
			if err := tx.Create(&characters[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormCharacterRepository) GetByID(ctx context.Context, id string) (*models.Character, error) {
	var character models.Character
	err := r.db.WithContext(ctx).First(&character, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &character, nil
}

func (r *GormCharacterRepository) GetAll(ctx context.Context) ([]models.Character, error) {
	var characters []models.Character
	err := r.db.WithContext(ctx).Order("position ASC").Find(&characters).Error
	if characters == nil {
		characters = []models.Character{}
	}
	return characters, err
}

func (r *GormCharacterRepository) Update(ctx context.Context, character *models.Character) error {
	res := r.db.WithContext(ctx).
		Model(&models.Character{}).
		Where("id = ?", character.ID).
		Select("name", "description", "personality", "system_prompt", "avatar_url", "avatar_icon", "updated_at").
		Updates(character)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormCharacterRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Character{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
