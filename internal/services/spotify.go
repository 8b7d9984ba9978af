// Spotify Web API implementation of [SpotifyAPI]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAccountsURL = "https://accounts.spotify.com"
	spotifyBaseURL     = "https://api.spotify.com/v1"

	// DefaultMarket is the market used for artist top tracks when none is given.
	DefaultMarket = "PH"

	maxSeveralTracks = 50
	maxAddTracks     = 100
	maxErrorBody     = 64 << 10
)

// SpotifyScopes are requested on login: enough to read top artists and write playlists.
var SpotifyScopes = []string{
	"playlist-modify-public",
	"playlist-modify-private",
	"user-top-read",
}

type followers struct {
	Total int `json:"total"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	Email        string         `json:"email,omitempty"`
	Country      string         `json:"country,omitempty"`
	Product      string         `json:"product,omitempty"` // premium, free, etc.
	Followers    followers      `json:"followers"`
	Images       []SpotifyImage `json:"images"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	PreviewURL string          `json:"preview_url"`
	URI        string          `json:"uri"`
}

// Model converts the API track into the frontend-facing [models.Track].
func (t SpotifyTrack) Model() models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	track := models.Track{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		PreviewURL: t.PreviewURL,
	}
	if len(t.Album.Images) > 0 {
		track.ImageURL = t.Album.Images[0].URL
	}
	return track
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres,omitempty"`
	Images     []SpotifyImage `json:"images,omitempty"`
	Popularity int            `json:"popularity,omitempty"`
	URI        string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylist represents a playlist as returned on creation.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Owner        Owner        `json:"owner"`
	Public       bool         `json:"public"`
	URI          string       `json:"uri"`
	ExternalURLs externalURLs `json:"external_urls"`
}

type paging[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Limit int     `json:"limit"`
	Next  *string `json:"next"`
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithHTTPClient sets the client used for API and token requests.
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = c }
}

// WithEndpoints points the service at alternate accounts and API hosts.
func WithEndpoints(accountsURL, apiURL string) SpotifyOption {
	return func(s *SpotifyService) {
		accountsURL = strings.TrimRight(accountsURL, "/")
		s.config.Endpoint = oauth2.Endpoint{
			AuthURL:   accountsURL + "/authorize",
			TokenURL:  accountsURL + "/api/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		}
		s.app.TokenURL = accountsURL + "/api/token"
		s.baseURL = strings.TrimRight(apiURL, "/")
	}
}

// WithTokenRefreshCallback registers fn to receive every token issued by a refresh.
func WithTokenRefreshCallback(fn func(*oauth2.Token)) SpotifyOption {
	return func(s *SpotifyService) { s.onTokenRefresh = fn }
}

// SpotifyService implements [SpotifyAPI] over the Spotify Web API.
//
// The service holds no user state: every user-scoped call receives the token to use,
// so one instance serves all sessions. Uses [oauth2] for the authorization code and refresh grants
// and [clientcredentials] for the application token.
type SpotifyService struct {
	config         *oauth2.Config
	app            *clientcredentials.Config
	httpClient     *http.Client
	baseURL        string
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyAccountsURL + "/authorize",
				TokenURL:  spotifyAccountsURL + "/api/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		app: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyAccountsURL + "/api/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    spotifyBaseURL,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// tokenContext makes the oauth2 package use the service's HTTP client.
func (s *SpotifyService) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for a user token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", shared.ErrAuthFailed)
	}

	token, err := s.config.Exchange(s.tokenContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh always issues a new access token from the token's refresh token.
//
// Spotify may omit the refresh token from the response; the old one is carried over.
func (s *SpotifyService) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(s.tokenContext(ctx), &oauth2.Token{RefreshToken: token.RefreshToken}),
		callback: s.onTokenRefresh,
	}

	fresh, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	return fresh, nil
}

// AppToken issues an application token through the client credentials grant.
func (s *SpotifyService) AppToken(ctx context.Context) (*oauth2.Token, error) {
	token, err := s.app.Token(s.tokenContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: client credentials: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// refreshableTokenSource reports every new access token issued by source to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

// doRequest performs an authenticated request against the Web API and decodes the JSON response into result.
//
// Non-2xx responses return a [*StatusError]; undecodable bodies wrap [shared.ErrUnexpectedResponse].
func (s *SpotifyService) doRequest(ctx context.Context, token *oauth2.Token, op, method, endpoint string, body, result any) error {
	if token == nil || token.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("spotify", op, 0, time.Since(start))
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest("spotify", op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: s.Name(), StatusCode: resp.StatusCode, Body: string(data)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrUnexpectedResponse, op, err)
		}
	}

	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, token, "me", http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile without id", shared.ErrUnexpectedResponse)
	}
	return &user, nil
}

// TopArtists retrieves the user's most played artists.
func (s *SpotifyService) TopArtists(ctx context.Context, token *oauth2.Token, limit int) ([]SpotifyArtist, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	var response paging[SpotifyArtist]
	endpoint := fmt.Sprintf("/me/top/artists?limit=%d", limit)
	if err := s.doRequest(ctx, token, "top_artists", http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// SearchTrack returns the first search hit for an exact title and artist query.
//
// An empty result wraps [shared.ErrTrackNotFound]; a response without a tracks object
// or a hit without a URI wraps [shared.ErrUnexpectedResponse].
func (s *SpotifyService) SearchTrack(ctx context.Context, token *oauth2.Token, title, artist string) (*SpotifyTrack, error) {
	var response struct {
		Tracks *paging[SpotifyTrack] `json:"tracks"`
	}
	endpoint := "/search?" + trackQuery(title, artist)
	if err := s.doRequest(ctx, token, "search", http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	if response.Tracks == nil {
		return nil, fmt.Errorf("%w: search response without tracks", shared.ErrUnexpectedResponse)
	}
	if len(response.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: %s - %s", shared.ErrTrackNotFound, title, artist)
	}

	track := response.Tracks.Items[0]
	if track.URI == "" {
		return nil, fmt.Errorf("%w: search hit without uri", shared.ErrUnexpectedResponse)
	}
	return &track, nil
}

// SearchArtist returns the first artist matching name.
func (s *SpotifyService) SearchArtist(ctx context.Context, token *oauth2.Token, name string) (*SpotifyArtist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: artist name is empty", shared.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("q", name)
	params.Set("type", "artist")
	params.Set("limit", "1")

	var response struct {
		Artists *paging[SpotifyArtist] `json:"artists"`
	}
	if err := s.doRequest(ctx, token, "search_artist", http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	if response.Artists == nil {
		return nil, fmt.Errorf("%w: search response without artists", shared.ErrUnexpectedResponse)
	}
	if len(response.Artists.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, name)
	}
	return &response.Artists.Items[0], nil
}

// ArtistTopTracks retrieves an artist's most popular tracks in a market.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, token *oauth2.Token, artistID, market string) ([]SpotifyTrack, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id is empty", shared.ErrInvalidInput)
	}
	if market == "" {
		market = DefaultMarket
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	endpoint := fmt.Sprintf("/artists/%s/top-tracks?market=%s", url.PathEscape(artistID), url.QueryEscape(market))
	if err := s.doRequest(ctx, token, "artist_top_tracks", http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}

// SeveralTracks retrieves full track objects for ids, fifty at a time, in input order.
//
// Unknown ids come back as null and are skipped.
func (s *SpotifyService) SeveralTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) ([]SpotifyTrack, error) {
	tracks := make([]SpotifyTrack, 0, len(trackIDs))
	for start := 0; start < len(trackIDs); start += maxSeveralTracks {
		end := min(start+maxSeveralTracks, len(trackIDs))

		var response struct {
			Tracks []*SpotifyTrack `json:"tracks"`
		}
		endpoint := "/tracks?ids=" + url.QueryEscape(strings.Join(trackIDs[start:end], ","))
		if err := s.doRequest(ctx, token, "tracks", http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, t := range response.Tracks {
			if t != nil {
				tracks = append(tracks, *t)
			}
		}
	}
	return tracks, nil
}

// CreatePlaylist creates an empty playlist owned by userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID, name, description string, public bool) (*SpotifyPlaylist, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is empty", shared.ErrInvalidInput)
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := s.doRequest(ctx, token, "create_playlist", http.MethodPost, endpoint, body, &playlist); err != nil {
		return nil, err
	}
	if playlist.ID == "" {
		return nil, fmt.Errorf("%w: playlist without id", shared.ErrUnexpectedResponse)
	}
	return &playlist, nil
}

// AddTracks appends uris to a playlist a hundred at a time, keeping their order.
func (s *SpotifyService) AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is empty", shared.ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	for start := 0; start < len(uris); start += maxAddTracks {
		end := min(start+maxAddTracks, len(uris))
		body := map[string][]string{"uris": uris[start:end]}
		if err := s.doRequest(ctx, token, "add_tracks", http.MethodPost, endpoint, body, nil); err != nil {
			return fmt.Errorf("failed to add tracks %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// trackQuery builds the exact-field search query for a title and artist.
func trackQuery(title, artist string) string {
	return "q=track%3A" + quote(title) + "%20artist%3A" + quote(artist) + "&type=track&limit=1"
}

// quote percent-encodes s for a query, leaving "/" intact and encoding spaces as %20.
func quote(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.ReplaceAll(escaped, "%2F", "/")
}

// IsNotFound reports whether err means a search produced no hits.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrTrackNotFound) || errors.Is(err, shared.ErrArtistNotFound)
}
