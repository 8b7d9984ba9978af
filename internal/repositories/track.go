package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
)

// TrackRepository persists resolved song → URI pairs in the resolved_tracks table.
//
// Rows are keyed by [shared.NormalizeTrackKey], so lookups ignore case and repeated whitespace.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Put inserts or replaces the URI for a title and artist
func (r *TrackRepository) Put(title, artist, uri string) error {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	if title == "" || artist == "" || uri == "" {
		return fmt.Errorf("%w: title, artist and uri are required", shared.ErrInvalidInput)
	}

	now := time.Now()
	query := `
		INSERT INTO resolved_tracks (key, title, artist, uri, hits, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET uri = excluded.uri, updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, shared.NormalizeTrackKey(title, artist), title, artist, uri, now, now); err != nil {
		return fmt.Errorf("failed to store track: %w", err)
	}
	return nil
}

// Get retrieves the cached resolution for a title and artist and counts the hit.
//
// Returns an error wrapping [shared.ErrTrackNotFound] on a miss.
func (r *TrackRepository) Get(title, artist string) (*models.ResolvedTrack, error) {
	key := shared.NormalizeTrackKey(title, artist)

	query := `
		SELECT key, title, artist, uri, hits, created_at, updated_at
		FROM resolved_tracks
		WHERE key = ?
	`

	track, err := r.scanOne(r.db.QueryRow(query, key))
	if err != nil {
		return nil, err
	}

	if _, err := r.db.Exec("UPDATE resolved_tracks SET hits = hits + 1 WHERE key = ?", key); err != nil {
		return nil, fmt.Errorf("failed to record cache hit: %w", err)
	}
	track.Hits++

	return track, nil
}

// List retrieves cached tracks, most used first. A limit of zero or less lists everything.
func (r *TrackRepository) List(limit int) ([]*models.ResolvedTrack, error) {
	query := `
		SELECT key, title, artist, uri, hits, created_at, updated_at
		FROM resolved_tracks
		ORDER BY hits DESC, updated_at DESC
	`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := []*models.ResolvedTrack{}
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// Count returns the number of cached tracks
func (r *TrackRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM resolved_tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// Clear removes every cached track and returns how many were removed
func (r *TrackRepository) Clear() (int, error) {
	result, err := r.db.Exec("DELETE FROM resolved_tracks")
	if err != nil {
		return 0, fmt.Errorf("failed to clear tracks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// scanOne scans a single [sql.Row] into a [models.ResolvedTrack]
func (r *TrackRepository) scanOne(row *sql.Row) (*models.ResolvedTrack, error) {
	var track models.ResolvedTrack

	err := row.Scan(&track.Key, &track.Title, &track.Artist, &track.URI, &track.Hits, &track.CreatedAt, &track.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	return &track, nil
}

// scanRow scans a row from [sql.Rows] into a [models.ResolvedTrack]
func (r *TrackRepository) scanRow(rows *sql.Rows) (*models.ResolvedTrack, error) {
	var track models.ResolvedTrack

	if err := rows.Scan(&track.Key, &track.Title, &track.Artist, &track.URI, &track.Hits, &track.CreatedAt, &track.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	return &track, nil
}
