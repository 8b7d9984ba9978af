package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/desertthunder/moodmix/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until interrupted.
//
// The refresh token stored by 'moodmix auth', if any, backs requests that carry no session.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.engine()
	if err != nil {
		return err
	}

	config := r.config.Server
	if host := cmd.String("host"); host != "" {
		config.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Port = port
	}

	srv := server.NewServer(config, r.spotify, engine, r.logger)
	if token := r.config.Credentials.Spotify.Token(); token != nil {
		r.logger.Info("using stored Spotify token for requests without a session")
		srv.WithFallbackToken(token)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
