package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/moodmix/internal/repositories"
	"github.com/urfave/cli/v3"
)

type historyEntry struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Resolved    int       `json:"resolved"`
	Failed      int       `json:"failed"`
	PlaylistID  string    `json:"playlist_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// History lists recent generations, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	generations, err := repositories.NewGenerationRepository(db).List(cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if cmd.Bool("json") {
		entries := make([]historyEntry, 0, len(generations))
		for _, g := range generations {
			entries = append(entries, historyEntry(*g))
		}
		return r.writeJSON(entries, true)
	}

	if len(generations) == 0 {
		return r.writePlain("No playlists generated yet\n")
	}

	for i, g := range generations {
		r.writePlain("%d. %s (%s)\n", i+1, g.Title, g.CreatedAt.Local().Format("2006-01-02 15:04"))
		r.writePlain("   Prompt: %s\n", g.Prompt)
		r.writePlain("   Songs: %d found, %d not found\n", g.Resolved, g.Failed)
		if g.PlaylistID != "" {
			r.writePlain("   Playlist: %s\n", g.PlaylistID)
		}
	}
	return nil
}
