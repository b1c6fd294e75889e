package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"characterchat/backend/internal/models"
)

const charactersSchema = `CREATE TABLE IF NOT EXISTS characters (
	position      INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL,
	personality   TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	avatar_url    TEXT NOT NULL DEFAULT '',
	avatar_icon   TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
)`

const selectColumns = `position, id, name, description, personality, system_prompt, avatar_url, avatar_icon, created_at, updated_at`

// SQLiteCharacterRepository stores characters in the embedded database.
type SQLiteCharacterRepository struct {
	db *sql.DB
}

// NewSQLiteCharacterRepository creates the characters table if needed.
func NewSQLiteCharacterRepository(ctx context.Context, db *sql.DB) (*SQLiteCharacterRepository, error) {
	if _, err := db.ExecContext(ctx, charactersSchema); err != nil {
		return nil, fmt.Errorf("failed to create characters table: %w", err)
	}
	return &SQLiteCharacterRepository{db: db}, nil
}

func (r *SQLiteCharacterRepository) Create(ctx context.Context, c *models.Character) error {
	return insertCharacter(ctx, r.db, c)
}

func (r *SQLiteCharacterRepository) CreateBatch(ctx context.Context, characters []models.Character) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for i := range characters {
		if err := insertCharacter(ctx, tx, &characters[i]); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit characters: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCharacter(ctx context.Context, db execer, c *models.Character) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO characters (id, name, description, personality, system_prompt, avatar_url, avatar_icon, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.Personality, c.SystemPrompt, c.AvatarURL, string(c.AvatarIcon), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	if pos, err := res.LastInsertId(); err == nil {
		c.Position = pos
	}
	return nil
}

func (r *SQLiteCharacterRepository) GetByID(ctx context.Context, id string) (*models.Character, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load character: %w", err)
	}
	return c, nil
}

func (r *SQLiteCharacterRepository) GetAll(ctx context.Context) ([]models.Character, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM characters ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	characters := []models.Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		characters = append(characters, *c)
	}
	return characters, rows.Err()
}

func (r *SQLiteCharacterRepository) Update(ctx context.Context, c *models.Character) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE characters
		 SET name = ?, description = ?, personality = ?, system_prompt = ?, avatar_url = ?, avatar_icon = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Description, c.Personality, c.SystemPrompt, c.AvatarURL, string(c.AvatarIcon), c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update character: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteCharacterRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return requireAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCharacter(s scanner) (*models.Character, error) {
	var (
		c    models.Character
		icon string
	)
	err := s.Scan(&c.Position, &c.ID, &c.Name, &c.Description, &c.Personality, &c.SystemPrompt,
		&c.AvatarURL, &icon, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.AvatarIcon = models.AvatarIcon(icon)
	return &c, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
