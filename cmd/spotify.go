package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/moodmix/internal/server"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens browser for user authorization,
// and exchanges the auth code for tokens which are saved to the config file.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.RequireSpotify(); err != nil {
		return err
	}
	if err := r.requireSpotify(); err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, "authorization")
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: moodmix generate --prompt \"how you feel\"\n")
	return nil
}

// SpotifyMe prints the logged-in user's profile.
func (r *Runner) SpotifyMe(ctx context.Context, cmd *cli.Command) error {
	token, err := r.freshUserToken(ctx)
	if err != nil {
		return err
	}

	user, err := r.spotify.UserProfile(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlainHeader(user.DisplayName)
	r.writePlain("ID: %s\n", user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	if user.Country != "" {
		r.writePlain("Country: %s\n", user.Country)
	}
	if user.Product != "" {
		r.writePlain("Plan: %s\n", user.Product)
	}
	r.writePlain("Followers: %d\n", user.Followers.Total)
	if user.ExternalURLs.Spotify != "" {
		r.writePlain("Profile: %s\n", user.ExternalURLs.Spotify)
	}
	return nil
}

// SpotifyTopArtists lists the user's top artists.
func (r *Runner) SpotifyTopArtists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 1 || limit > 50 {
		return fmt.Errorf("%w: --limit must be between 1 and 50", shared.ErrInvalidFlag)
	}

	token, err := r.freshUserToken(ctx)
	if err != nil {
		return err
	}

	r.logger.Infof("listing top artists with limit %v", limit)

	artists, err := r.spotify.TopArtists(ctx, token, limit)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(artists, cmd.Bool("pretty"))
	}

	if len(artists) == 0 {
		return r.writePlain("No top artists yet. Listen to some music first!\n")
	}

	r.writePlain("Top %d artists:\n\n", len(artists))
	for i, a := range artists {
		r.writePlain("%d. %s\n", i+1, a.Name)
		if len(a.Genres) > 0 {
			r.writePlain("   Genres: %s\n", strings.Join(a.Genres, ", "))
		}
	}
	return nil
}

// SpotifyTopTracks looks up an artist by name and lists their top tracks in a market.
// Uses an application token, so no login is required.
func (r *Runner) SpotifyTopTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSpotify(); err != nil {
		return err
	}

	name := strings.TrimSpace(cmd.String("artist"))
	if name == "" {
		return fmt.Errorf("%w: --artist is required", shared.ErrMissingArgument)
	}
	market := strings.ToUpper(cmd.String("market"))

	token, err := r.spotify.AppToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get application token: %w", err)
	}

	artist, err := r.spotify.SearchArtist(ctx, token, name)
	if err != nil {
		if services.IsNotFound(err) {
			return fmt.Errorf("no artist matches %q: %w", name, err)
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	tracks, err := r.spotify.ArtistTopTracks(ctx, token, artist.ID, market)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlain("Top tracks for %s (%s):\n\n", artist.Name, market)
	for i, t := range tracks {
		track := t.Model()
		r.writePlain("%d. %s - %s\n", i+1, strings.Join(track.Artists, ", "), track.Name)
		if track.Album != "" {
			r.writePlain("   Album: %s\n", track.Album)
		}
		r.writePlain("   URI: %s\n", track.URI)
	}
	return nil
}

// freshUserToken refreshes the stored user token and saves the result. When the stored
// credentials no longer work, the OAuth flow is started again.
func (r *Runner) freshUserToken(ctx context.Context) (*oauth2.Token, error) {
	if err := r.requireSpotify(); err != nil {
		return nil, err
	}

	token, err := r.userToken()
	if err != nil {
		return nil, err
	}
	if token.Valid() || token.RefreshToken == "" {
		return token, nil
	}

	fresh, err := r.spotify.Refresh(ctx, token)
	if err != nil {
		return r.handleSpotifyAuthError(ctx, err)
	}
	r.keepToken(fresh)
	return fresh, nil
}

// handleSpotifyAuthError reauthorizes when err means the stored token can no longer be used.
// Any other error is returned unchanged.
func (r *Runner) handleSpotifyAuthError(ctx context.Context, err error) (*oauth2.Token, error) {
	if !errors.Is(err, shared.ErrTokenExpired) && !errors.Is(err, shared.ErrRefreshFailed) {
		return nil, err
	}

	r.narrate("⚠ Stored Spotify token is no longer valid. Starting reauthorization...\n")

	token, authErr := r.doOAuth(ctx, "reauthorization")
	if authErr != nil {
		return nil, fmt.Errorf("reauthorization failed: %w", authErr)
	}
	if err := r.saveTokens(token); err != nil {
		return nil, err
	}

	r.narrate("✓ Reauthorization successful. Retrying...\n")
	return token, nil
}

// callbackAddr splits the configured redirect URI into a listen address and callback path.
func (r *Runner) callbackAddr() (string, string, error) {
	redirect := r.config.Credentials.Spotify.RedirectURI
	if redirect == "" {
		return r.config.Server.Addr(), "/callback", nil
	}

	u, err := url.Parse(redirect)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: redirect_uri %q is not an absolute URL", shared.ErrInvalidConfig, redirect)
	}
	return u.Host, u.Path, nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	addr, path, err := r.callbackAddr()
	if err != nil {
		return nil, err
	}

	authURL := r.spotify.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(r.spotify, state, path)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           oauthHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.narrate("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.narrate("\n⚠ Could not open browser automatically.\n")
		r.narrate("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.narrate("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
