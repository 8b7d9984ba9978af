package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/moodmix/internal/shared"
	"golang.org/x/oauth2"
)

// SpotifyAPI is the Spotify surface used by the playlist engine, the HTTP handlers and the CLI.
//
// Implemented by [SpotifyService] and by [BreakerClient], which guards one with a circuit breaker.
type SpotifyAPI interface {
	// AuthURL returns the authorization URL for a login carrying state.
	AuthURL(state string) string

	// Exchange trades an authorization code for a user token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh issues a new access token from a token's refresh token.
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)

	// AppToken issues an application (client credentials) token.
	AppToken(ctx context.Context) (*oauth2.Token, error)

	UserProfile(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error)
	TopArtists(ctx context.Context, token *oauth2.Token, limit int) ([]SpotifyArtist, error)

	// SearchTrack returns the single best hit for an exact title and artist query.
	SearchTrack(ctx context.Context, token *oauth2.Token, title, artist string) (*SpotifyTrack, error)
	SearchArtist(ctx context.Context, token *oauth2.Token, name string) (*SpotifyArtist, error)
	ArtistTopTracks(ctx context.Context, token *oauth2.Token, artistID, market string) ([]SpotifyTrack, error)
	SeveralTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) ([]SpotifyTrack, error)

	CreatePlaylist(ctx context.Context, token *oauth2.Token, userID, name, description string, public bool) (*SpotifyPlaylist, error)
	AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) error

	// Name returns the name of the service
	Name() string
}

// StatusError is a non-2xx response from an upstream API.
//
// It matches [shared.ErrAPIRequest] with errors.Is, and also [shared.ErrTokenExpired] for 401s.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() []error {
	if e.StatusCode == http.StatusUnauthorized {
		return []error{shared.ErrAPIRequest, shared.ErrTokenExpired}
	}
	return []error{shared.ErrAPIRequest}
}

// Temporary reports whether the upstream failed on its side and the call may succeed later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
