package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/moodmix/internal/recommend"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// Parse reads a raw recommender reply and prints the playlist it describes.
func (r *Runner) Parse(ctx context.Context, cmd *cli.Command) error {
	var (
		data []byte
		err  error
	)
	if path := cmd.StringArg("file"); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(r.input)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read reply: %v", shared.ErrInvalidInput, err)
	}

	suggestion, err := recommend.Parse(string(data))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(suggestion, cmd.Bool("pretty"))
	}

	r.writePlain("Title: %s\n", suggestion.Title)
	r.writePlain("Description: %s\n", suggestion.Description)
	r.writePlain("Songs: %d\n\n", len(suggestion.Songs))
	for i, song := range suggestion.Songs {
		if song.Artist == "" {
			r.writePlain("%d. %s\n", i+1, song.Title)
			continue
		}
		r.writePlain("%d. %s - %s\n", i+1, song.Artist, song.Title)
	}
	return nil
}
