package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to --path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		return fmt.Errorf("%w: --path is required", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n\n", path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret\n")
	r.writePlain("2. Set credentials.gemini.api_key\n")
	r.writePlain("3. Run 'moodmix auth' to log in to Spotify\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
// With --rollback the most recently applied migration is reverted instead.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config.Database
	if path := cmd.String("path"); path != "" {
		config.Path = path
	}
	if config.Path == "" {
		return fmt.Errorf("%w: set database.path in the config or pass --path", shared.ErrMissingConfig)
	}

	r.logger.Info("initializing database", "path", config.Path)

	db, err := shared.NewDatabase(config.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.MaxOpenConns, config.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back latest migration")
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writePlain("✓ Rolled back latest migration in %s\n", config.Path)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Path)
	return r.writePlain("✓ Database ready at %s\n", config.Path)
}
