package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/moodmix/internal/repositories"
	"github.com/urfave/cli/v3"
)

type cacheStats struct {
	Entries int          `json:"entries"`
	Top     []cacheEntry `json:"top"`
}

type cacheEntry struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	URI    string `json:"uri"`
	Hits   int    `json:"hits"`
}

func (r *Runner) trackRepository() (*repositories.TrackRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewTrackRepository(db), nil
}

// CacheStats shows how many song resolutions are cached and which are used most.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.trackRepository()
	if err != nil {
		return err
	}

	count, err := repo.Count()
	if err != nil {
		return fmt.Errorf("failed to count cache entries: %w", err)
	}
	tracks, err := repo.List(cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	stats := cacheStats{Entries: count, Top: make([]cacheEntry, 0, len(tracks))}
	for _, t := range tracks {
		stats.Top = append(stats.Top, cacheEntry{Title: t.Title, Artist: t.Artist, URI: t.URI, Hits: t.Hits})
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlain("Cached resolutions: %d\n", stats.Entries)
	if len(stats.Top) == 0 {
		return nil
	}

	r.writePlain("\nMost used:\n")
	for i, e := range stats.Top {
		label := e.Title
		if e.Artist != "" {
			label = e.Artist + " - " + e.Title
		}
		r.writePlain("%d. %s (%d hits)\n   %s\n", i+1, label, e.Hits, e.URI)
	}
	return nil
}

// CacheClear removes every cached resolution.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.trackRepository()
	if err != nil {
		return err
	}

	removed, err := repo.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	r.logger.Info("cache cleared", "removed", removed)
	return r.writePlain("✓ Removed %d cached entries\n", removed)
}
