package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
)

// DefaultHistoryLimit is how many generations List returns when no limit is given.
const DefaultHistoryLimit = 20

// GenerationRepository records generated playlists in the generations table.
type GenerationRepository struct {
	db *sql.DB
}

// NewGenerationRepository creates a new GenerationRepository with the given database connection
func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Create inserts a generation with a generated ID
func (r *GenerationRepository) Create(g *models.Generation) error {
	if g.Title == "" {
		return fmt.Errorf("%w: generation title is required", shared.ErrInvalidInput)
	}

	g.ID = shared.GenerateID()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO generations (id, prompt, title, description, resolved, failed, playlist_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, g.ID, g.Prompt, g.Title, g.Description, g.Resolved, g.Failed, nullString(g.PlaylistID), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// Get retrieves a generation by ID
func (r *GenerationRepository) Get(id string) (*models.Generation, error) {
	query := `
		SELECT id, prompt, title, description, resolved, failed, playlist_id, created_at
		FROM generations
		WHERE id = ?
	`

	g, err := scanGeneration(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan generation: %w", err)
	}
	return g, nil
}

// List retrieves the most recent generations, newest first
func (r *GenerationRepository) List(limit int) ([]*models.Generation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, prompt, title, description, resolved, failed, playlist_id, created_at
		FROM generations
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	generations := []*models.Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return generations, nil
}

// SetPlaylistID links a generation to the Spotify playlist created from it
func (r *GenerationRepository) SetPlaylistID(id, playlistID string) error {
	result, err := r.db.Exec("UPDATE generations SET playlist_id = ? WHERE id = ?", playlistID, id)
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("generation not found: %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (*models.Generation, error) {
	var (
		g          models.Generation
		playlistID sql.NullString
	)

	if err := s.Scan(&g.ID, &g.Prompt, &g.Title, &g.Description, &g.Resolved, &g.Failed, &playlistID, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.PlaylistID = playlistID.String
	return &g, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
