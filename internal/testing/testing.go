// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"golang.org/x/oauth2"
)

// MockSpotify is a test double for [services.SpotifyAPI].
//
// Search results are keyed by "title|artist". Calls are recorded so tests can assert on the sequence.
type MockSpotify struct {
	mu sync.Mutex

	User          *services.SpotifyUser
	Artists       []services.SpotifyArtist
	SearchResults map[string]*services.SpotifyTrack
	SearchErrors  map[string]error
	Tracks        map[string]services.SpotifyTrack
	ArtistResults map[string]*services.SpotifyArtist
	TopTracks     map[string][]services.SpotifyTrack
	Playlist      *services.SpotifyPlaylist

	ExchangeErr     error
	RefreshErr      error
	AppTokenErr     error
	UserErr         error
	TopArtistsErr   error
	SeveralErr      error
	CreateErr       error
	AddErr          error
	ArtistSearchErr error

	Calls         []string
	SearchTokens  []string
	AddedURIs     []string
	CreatedPublic bool
}

var _ services.SpotifyAPI = (*MockSpotify)(nil)

// NewMockSpotify returns a MockSpotify with a default user and playlist.
func NewMockSpotify() *MockSpotify {
	return &MockSpotify{
		User:          &services.SpotifyUser{ID: "user1", DisplayName: "Test User"},
		SearchResults: map[string]*services.SpotifyTrack{},
		SearchErrors:  map[string]error{},
		Tracks:        map[string]services.SpotifyTrack{},
		ArtistResults: map[string]*services.SpotifyArtist{},
		TopTracks:     map[string][]services.SpotifyTrack{},
		Playlist:      &services.SpotifyPlaylist{ID: "pl1", Name: "Mock"},
	}
}

// AddTrack registers a search hit and its details for id.
func (m *MockSpotify) AddTrack(title, artist, id string) {
	track := services.SpotifyTrack{ID: id, URI: "spotify:track:" + id, Name: title, Artists: []services.SpotifyArtist{{Name: artist}}}
	m.SearchResults[title+"|"+artist] = &track
	m.Tracks[id] = track
}

func (m *MockSpotify) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// CallLog returns the recorded calls joined by commas.
func (m *MockSpotify) CallLog() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.Calls, ",")
}

func (m *MockSpotify) Name() string { return "mock" }

func (m *MockSpotify) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockSpotify) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	m.record("exchange")
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, TokenType: "Bearer"}, nil
}

func (m *MockSpotify) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	m.record("refresh")
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	if token == nil || token.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	return &oauth2.Token{AccessToken: "user-token", RefreshToken: token.RefreshToken, TokenType: "Bearer"}, nil
}

func (m *MockSpotify) AppToken(ctx context.Context) (*oauth2.Token, error) {
	m.record("app_token")
	if m.AppTokenErr != nil {
		return nil, m.AppTokenErr
	}
	return &oauth2.Token{AccessToken: "app-token", TokenType: "Bearer"}, nil
}

func (m *MockSpotify) UserProfile(ctx context.Context, token *oauth2.Token) (*services.SpotifyUser, error) {
	m.record("me")
	if m.UserErr != nil {
		return nil, m.UserErr
	}
	return m.User, nil
}

func (m *MockSpotify) TopArtists(ctx context.Context, token *oauth2.Token, limit int) ([]services.SpotifyArtist, error) {
	m.record("top_artists")
	if m.TopArtistsErr != nil {
		return nil, m.TopArtistsErr
	}
	return m.Artists, nil
}

func (m *MockSpotify) SearchTrack(ctx context.Context, token *oauth2.Token, title, artist string) (*services.SpotifyTrack, error) {
	m.record("search")
	m.mu.Lock()
	if token != nil {
		m.SearchTokens = append(m.SearchTokens, token.AccessToken)
	}
	m.mu.Unlock()

	key := title + "|" + artist
	if err, ok := m.SearchErrors[key]; ok {
		return nil, err
	}
	if track, ok := m.SearchResults[key]; ok {
		return track, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, key)
}

func (m *MockSpotify) SearchArtist(ctx context.Context, token *oauth2.Token, name string) (*services.SpotifyArtist, error) {
	m.record("search_artist")
	if m.ArtistSearchErr != nil {
		return nil, m.ArtistSearchErr
	}
	if artist, ok := m.ArtistResults[name]; ok {
		return artist, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, name)
}

func (m *MockSpotify) ArtistTopTracks(ctx context.Context, token *oauth2.Token, artistID, market string) ([]services.SpotifyTrack, error) {
	m.record("artist_top_tracks")
	return m.TopTracks[artistID], nil
}

func (m *MockSpotify) SeveralTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) ([]services.SpotifyTrack, error) {
	m.record("tracks")
	if m.SeveralErr != nil {
		return nil, m.SeveralErr
	}
	tracks := make([]services.SpotifyTrack, 0, len(trackIDs))
	for _, id := range trackIDs {
		if t, ok := m.Tracks[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func (m *MockSpotify) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID, name, description string, public bool) (*services.SpotifyPlaylist, error) {
	m.record("create_playlist")
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.CreatedPublic = public
	playlist := *m.Playlist
	playlist.Name = name
	playlist.Description = description
	return &playlist, nil
}

func (m *MockSpotify) AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) error {
	m.record("add_tracks")
	if m.AddErr != nil {
		return m.AddErr
	}
	m.AddedURIs = append(m.AddedURIs, uris...)
	return nil
}

// MockRecommender returns a canned reply and records the last prompt.
type MockRecommender struct {
	Reply  string
	Err    error
	Prompt string
}

func (m *MockRecommender) Recommend(ctx context.Context, prompt string) (string, error) {
	m.Prompt = prompt
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
