// package tasks turns a mood prompt into a Spotify playlist.
//
// The core abstraction is PlaylistEngine, which orchestrates recommendation, track resolution and playlist creation.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/recommend"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"golang.org/x/oauth2"
)

// TopArtistLimit is how many top artists seed the recommendation prompt.
const TopArtistLimit = 10

// Recommender returns free text for a prompt.
type Recommender interface {
	Recommend(ctx context.Context, prompt string) (string, error)
}

// GenerationRecorder persists generated playlists. Optional.
type GenerationRecorder interface {
	Create(generation *models.Generation) error
	SetPlaylistID(id, playlistID string) error
}

// PlaylistRequest describes a playlist to create from resolved URIs.
type PlaylistRequest struct {
	GenerationID string // links the created playlist to a recorded generation, if any
	Title        string
	Description  string
	URIs         []string
}

// Generator defines the playlist operations exposed to the CLI, TUI and HTTP layers.
type Generator interface {
	// BuildPlaylist turns a feeling into a titled list of resolved tracks.
	// The returned token is the refreshed user token, which callers should store.
	BuildPlaylist(ctx context.Context, token *oauth2.Token, prompt string, progress chan<- ProgressUpdate) (*models.GeneratedPlaylist, *oauth2.Token, error)

	// CreatePlaylist creates a private playlist for the user and adds the URIs in order.
	CreatePlaylist(ctx context.Context, token *oauth2.Token, req PlaylistRequest, progress chan<- ProgressUpdate) (*models.CreatedPlaylist, *oauth2.Token, error)
}

// PlaylistEngine implements Generator.
// Contains dependencies on the Spotify API, the recommender and the resolver.
type PlaylistEngine struct {
	spotify     services.SpotifyAPI
	recommender Recommender
	resolver    *Resolver
	history     GenerationRecorder
	logger      *log.Logger
}

var _ Generator = (*PlaylistEngine)(nil)

// NewPlaylistEngine creates a new PlaylistEngine with the provided services.
func NewPlaylistEngine(spotify services.SpotifyAPI, recommender Recommender, resolver *Resolver, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &PlaylistEngine{
		spotify:     spotify,
		recommender: recommender,
		resolver:    resolver,
		logger:      logger,
	}
}

// WithHistory records every generated playlist.
func (e *PlaylistEngine) WithHistory(history GenerationRecorder) *PlaylistEngine {
	e.history = history
	return e
}

// userToken refreshes the user's token. A token without a refresh token is used as is.
func (e *PlaylistEngine) userToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return nil, shared.ErrNotAuthenticated
	}
	if token.RefreshToken == "" {
		return token, nil
	}

	fresh, err := e.spotify.Refresh(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh user token: %w", err)
	}
	return fresh, nil
}

// topArtists returns the names of the user's top artists. Failures are logged and yield none.
func (e *PlaylistEngine) topArtists(ctx context.Context, token *oauth2.Token) []string {
	artists, err := e.spotify.TopArtists(ctx, token, TopArtistLimit)
	if err != nil {
		e.logger.Warn("could not fetch top artists, continuing without them", "error", err)
		return nil
	}

	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

// BuildPlaylist runs the recommendation pipeline:
//
//  1. issue an application token (used for search and track lookups)
//  2. refresh the user token
//  3. fetch the user's top artists
//  4. ask the recommender for a playlist
//  5. parse the reply
//  6. resolve each song to a track URI
//  7. fetch full track details
//
// Token refresh, recommender and parse failures are fatal. Per-song resolution failures are
// reported in the result, and missing top artists or track details only degrade it.
func (e *PlaylistEngine) BuildPlaylist(ctx context.Context, token *oauth2.Token, prompt string, progress chan<- ProgressUpdate) (*models.GeneratedPlaylist, *oauth2.Token, error) {
	if e.spotify == nil || e.recommender == nil || e.resolver == nil {
		return nil, nil, fmt.Errorf("%w: playlist engine not initialized", shared.ErrServiceUnavailable)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, nil, fmt.Errorf("%w: prompt is empty", shared.ErrInvalidInput)
	}

	start := time.Now()

	sendProgress(progress, authorizeUpdate("Getting application token..."))
	appToken, err := e.spotify.AppToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	sendProgress(progress, authorizeUpdate("Refreshing user token..."))
	userToken, err := e.userToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	artists := e.topArtists(ctx, userToken)
	sendProgress(progress, topArtistsUpdate(artists))

	sendProgress(progress, recommendUpdate())
	reply, err := e.recommender.Recommend(ctx, recommend.BuildPrompt(artists, prompt))
	if err != nil {
		return nil, userToken, fmt.Errorf("recommendation failed: %w", err)
	}

	suggestion, err := recommend.Parse(reply)
	if err != nil {
		e.logger.Error("could not parse recommendation", "error", err, "reply", reply)
		return nil, userToken, err
	}
	metrics.PlaylistsGenerated.Inc()
	sendProgress(progress, parsedUpdate(suggestion))

	report, err := e.resolver.Resolve(ctx, appToken, suggestion.Songs, progress)
	if err != nil {
		return nil, userToken, err
	}

	playlist := &models.GeneratedPlaylist{
		Prompt:      prompt,
		Title:       suggestion.Title,
		Description: suggestion.Description,
		Songs:       suggestion.Songs,
		URIs:        report.Matches,
		Tracks:      []models.Track{},
		Failures:    report.Failures,
		TopArtists:  artists,
	}

	if ids := models.TrackIDs(report.Matches); len(ids) > 0 {
		sendProgress(progress, fetchTracksUpdate(len(ids)))
		tracks, err := e.spotify.SeveralTracks(ctx, appToken, ids)
		if err != nil {
			e.logger.Warn("could not fetch track details", "error", err)
		} else {
			for _, t := range tracks {
				playlist.Tracks = append(playlist.Tracks, t.Model())
			}
		}
	}

	e.record(playlist)

	e.logger.Info("playlist generated",
		"title", playlist.Title, "songs", len(suggestion.Songs), "report", summarize(report), "duration", time.Since(start))
	sendProgress(progress, completeUpdate(fmt.Sprintf("Generated %q: %s", playlist.Title, summarize(report)), playlist))

	return playlist, userToken, nil
}

func (e *PlaylistEngine) record(playlist *models.GeneratedPlaylist) {
	if e.history == nil {
		return
	}

	generation := &models.Generation{
		Prompt:      playlist.Prompt,
		Title:       playlist.Title,
		Description: playlist.Description,
		Resolved:    len(playlist.URIs),
		Failed:      len(playlist.Failures),
	}
	if err := e.history.Create(generation); err != nil {
		e.logger.Warn("could not record generation", "error", err)
		return
	}
	playlist.ID = generation.ID
}

// CreatePlaylist creates a private playlist owned by the user and adds req.URIs in order.
//
// Sequence: refresh the user token, look up the user id, create the playlist, add the tracks.
func (e *PlaylistEngine) CreatePlaylist(ctx context.Context, token *oauth2.Token, req PlaylistRequest, progress chan<- ProgressUpdate) (*models.CreatedPlaylist, *oauth2.Token, error) {
	if e.spotify == nil {
		return nil, nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, nil, fmt.Errorf("%w: playlist title is empty", shared.ErrInvalidInput)
	}

	sendProgress(progress, authorizeUpdate("Refreshing user token..."))
	userToken, err := e.userToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := e.spotify.UserProfile(ctx, userToken)
	if err != nil {
		return nil, userToken, fmt.Errorf("failed to get user profile: %w", err)
	}

	sendProgress(progress, createPlaylistUpdate(req.Title))
	playlist, err := e.spotify.CreatePlaylist(ctx, userToken, user.ID, req.Title, req.Description, false)
	if err != nil {
		return nil, userToken, fmt.Errorf("failed to create playlist: %w", err)
	}

	if len(req.URIs) > 0 {
		sendProgress(progress, addTracksUpdate(len(req.URIs), playlist.ID))
		if err := e.spotify.AddTracks(ctx, userToken, playlist.ID, req.URIs); err != nil {
			return nil, userToken, fmt.Errorf("playlist %s created but tracks could not be added: %w", playlist.ID, err)
		}
	}

	metrics.PlaylistsCreated.Inc()

	if e.history != nil && req.GenerationID != "" {
		if err := e.history.SetPlaylistID(req.GenerationID, playlist.ID); err != nil {
			e.logger.Warn("could not link playlist to generation", "generation", req.GenerationID, "error", err)
		}
	}

	created := &models.CreatedPlaylist{
		ID:         playlist.ID,
		URL:        playlist.ExternalURLs.Spotify,
		TrackCount: len(req.URIs),
	}

	e.logger.Info("playlist created", "id", created.ID, "user", user.ID, "tracks", created.TrackCount)
	sendProgress(progress, completeUpdate(fmt.Sprintf("Playlist created: %s (ID: %s)", req.Title, playlist.ID), created))
	return created, userToken, nil
}
