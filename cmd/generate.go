package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/desertthunder/moodmix/internal/formatter"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/desertthunder/moodmix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Generate builds a playlist from a prompt and prints or exports it.
// With --create the playlist is also created on the user's Spotify account.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	format := strings.ToLower(cmd.String("format"))
	switch format {
	case "json", "csv", "markdown", "md", "txt", "text":
	default:
		return fmt.Errorf("%w: unknown format %q (use json, csv, markdown or txt)", shared.ErrInvalidFlag, format)
	}

	prompt, err := r.readPrompt(cmd.String("prompt"))
	if err != nil {
		return err
	}

	token, err := r.userToken()
	if err != nil {
		return err
	}

	engine, err := r.engine()
	if err != nil {
		return err
	}

	r.logger.Info("generating playlist", "prompt_length", len(prompt))

	progress, stop := r.followProgress()
	playlist, fresh, err := engine.BuildPlaylist(ctx, token, prompt, progress)
	stop()
	r.keepToken(fresh)
	if err != nil {
		return err
	}
	if fresh != nil {
		token = fresh
	}

	if err := r.export(playlist, format, cmd.String("output"), cmd.Bool("pretty")); err != nil {
		return err
	}

	if !cmd.Bool("create") {
		return nil
	}

	if len(playlist.URIs) == 0 {
		r.narrate("⚠ No songs were found on Spotify, skipping playlist creation\n")
		return nil
	}

	progress, stop = r.followProgress()
	created, fresh, err := engine.CreatePlaylist(ctx, token, tasks.PlaylistRequest{
		GenerationID: playlist.ID,
		Title:        playlist.Title,
		Description:  playlist.Description,
		URIs:         playlist.URIs,
	}, progress)
	stop()
	r.keepToken(fresh)
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}

	r.narrate("✓ Playlist created: %s (%d tracks)\n", created.ID, created.TrackCount)
	if created.URL != "" {
		r.narrate("  %s\n", created.URL)
	}
	return nil
}

// readPrompt returns the flag value, falling back to the runner's input.
func (r *Runner) readPrompt(flag string) (string, error) {
	prompt := strings.TrimSpace(flag)
	if prompt != "" {
		return prompt, nil
	}

	data, err := io.ReadAll(r.input)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read prompt: %v", shared.ErrInvalidInput, err)
	}
	prompt = strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("%w: provide --prompt or pipe a prompt on stdin", shared.ErrMissingArgument)
	}
	return prompt, nil
}

// export writes playlist in format. Without an output path, the export goes to the runner's output.
func (r *Runner) export(playlist *models.GeneratedPlaylist, format, output string, pretty bool) error {
	switch format {
	case "json":
		if output == "" {
			return r.writeJSON(playlist, pretty)
		}
		data, err := shared.MarshalJSON(playlist, pretty)
		if err != nil {
			return fmt.Errorf("failed to marshal playlist: %w", err)
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		r.narrate("✓ Playlist exported to %s\n", output)

	case "csv":
		if output == "" {
			data, err := formatter.ExportToCSV(playlist)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		result, err := formatter.WriteCSVExport(playlist, output)
		if err != nil {
			return err
		}
		r.narrate("✓ Tracks exported to %s\n", result.TracksFile)
		r.narrate("✓ Metadata exported to %s\n", result.MetadataFile)

	case "markdown", "md":
		if output == "" {
			data, err := formatter.ExportToMarkdown(playlist, "")
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		result, err := formatter.WriteMarkdownExport(r.httpClient, playlist, output)
		if err != nil {
			return err
		}
		for _, warning := range result.Warnings {
			r.logger.Warn(warning)
		}
		r.narrate("✓ Playlist exported to %s\n", result.Directory)

	default:
		if output == "" {
			data, err := formatter.ExportToText(playlist)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		path, err := formatter.WriteTextExport(playlist, output)
		if err != nil {
			return err
		}
		r.narrate("✓ Playlist exported to %s\n", path)
	}
	return nil
}
