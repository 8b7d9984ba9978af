package main

import (
	"context"
	"os"

	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv("MOODMIX_CONFIG"); p != "" {
		configPath = p
	}

	config, err := shared.LoadOrDefault(configPath)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	var spotify services.SpotifyAPI
	if svc, err := services.NewSpotifyService(map[string]string{
		"client_id":     config.Credentials.Spotify.ClientID,
		"client_secret": config.Credentials.Spotify.ClientSecret,
		"redirect_uri":  config.Credentials.Spotify.RedirectURI,
	}); err == nil {
		spotify = services.NewBreakerClient(svc, logger)
	} else {
		logger.Debug("spotify service disabled", "error", err)
	}

	var recommender *services.BreakerRecommender
	if gemini, err := services.NewGeminiClient(config.Credentials.Gemini, nil); err == nil {
		recommender = services.NewBreakerRecommender(gemini, logger)
	} else {
		logger.Debug("gemini client disabled", "error", err)
	}

	opts := RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Spotify:    spotify,
		Logger:     logger,
	}
	if recommender != nil {
		opts.Recommender = recommender
	}
	runner := NewRunner(opts)
	defer runner.Close()

	app := &cli.Command{
		Name:     "moodmix",
		Usage:    "Turn a mood into a Spotify playlist",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}
