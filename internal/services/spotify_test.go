package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
	"redirect_uri":  "http://127.0.0.1:3000/callback",
}

// newTestSpotify starts an httptest server serving handler for both the accounts and API hosts.
func newTestSpotify(t *testing.T, handler http.HandlerFunc, opts ...SpotifyOption) *SpotifyService {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]SpotifyOption{
		WithHTTPClient(server.Client()),
		WithEndpoints(server.URL, server.URL+"/v1"),
	}, opts...)

	srv, err := NewSpotifyService(testCredentials, opts...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return srv
}

func testToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "user_token", RefreshToken: "refresh_token"}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "secret"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{"client_id": "id", "client_secret": "secret"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.config.RedirectURL != "http://127.0.0.1:3000/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.AuthURL("test_state")
		for _, want := range []string{
			"accounts.spotify.com/authorize",
			"client_id=test_client_id",
			"state=test_state",
			"response_type=code",
			"playlist-modify-public",
			"playlist-modify-private",
			"user-top-read",
		} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %s should contain %s", authURL, want)
			}
		}
	})

	t.Run("Token grants", func(t *testing.T) {
		var mu sync.Mutex
		var grants []string

		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/token" {
				http.NotFound(w, r)
				return
			}
			if user, pass, ok := r.BasicAuth(); !ok || user != "test_client_id" || pass != "test_client_secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = r.ParseForm()

			mu.Lock()
			grants = append(grants, r.PostForm.Get("grant_type"))
			mu.Unlock()

			switch r.PostForm.Get("grant_type") {
			case "authorization_code":
				if r.PostForm.Get("code") != "good_code" {
					w.WriteHeader(http.StatusBadRequest)
					writeJSON(t, w, map[string]string{"error": "invalid_grant"})
					return
				}
				writeJSON(t, w, map[string]any{
					"access_token": "access", "refresh_token": "refresh", "token_type": "Bearer", "expires_in": 3600,
				})
			case "refresh_token":
				writeJSON(t, w, map[string]any{"access_token": "refreshed", "token_type": "Bearer", "expires_in": 3600})
			case "client_credentials":
				writeJSON(t, w, map[string]any{"access_token": "app", "token_type": "Bearer", "expires_in": 3600})
			}
		})

		t.Run("Exchange", func(t *testing.T) {
			token, err := srv.Exchange(context.Background(), "good_code")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "access" || token.RefreshToken != "refresh" {
				t.Errorf("unexpected token %+v", token)
			}
		})

		t.Run("Exchange failure", func(t *testing.T) {
			_, err := srv.Exchange(context.Background(), "bad_code")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Exchange without code", func(t *testing.T) {
			_, err := srv.Exchange(context.Background(), "")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Refresh keeps refresh token", func(t *testing.T) {
			token, err := srv.Refresh(context.Background(), testToken())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "refreshed" {
				t.Errorf("expected refreshed access token, got %s", token.AccessToken)
			}
			if token.RefreshToken != "refresh_token" {
				t.Errorf("expected previous refresh token to be kept, got %s", token.RefreshToken)
			}
		})

		t.Run("Refresh without refresh token", func(t *testing.T) {
			_, err := srv.Refresh(context.Background(), &oauth2.Token{AccessToken: "a"})
			if !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
		})

		t.Run("AppToken", func(t *testing.T) {
			token, err := srv.AppToken(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "app" {
				t.Errorf("expected app token, got %s", token.AccessToken)
			}
		})

		mu.Lock()
		defer mu.Unlock()
		want := []string{"authorization_code", "authorization_code", "refresh_token", "client_credentials"}
		if strings.Join(grants, ",") != strings.Join(want, ",") {
			t.Errorf("expected grants %v, got %v", want, grants)
		}
	})

	t.Run("Refresh callback", func(t *testing.T) {
		var refreshed []*oauth2.Token
		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"access_token": "new", "refresh_token": "rotated", "token_type": "Bearer"})
		}, WithTokenRefreshCallback(func(token *oauth2.Token) {
			refreshed = append(refreshed, token)
		}))

		token, err := srv.Refresh(context.Background(), testToken())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.RefreshToken != "rotated" {
			t.Errorf("expected rotated refresh token, got %s", token.RefreshToken)
		}
		if len(refreshed) != 1 || refreshed[0].AccessToken != "new" {
			t.Errorf("expected callback with new token, got %v", refreshed)
		}
	})

	t.Run("SearchTrack", func(t *testing.T) {
		var rawQuery string
		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			rawQuery = r.URL.RawQuery
			if r.Header.Get("Authorization") != "Bearer user_token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(t, w, map[string]any{
				"tracks": map[string]any{
					"items": []map[string]any{{"id": "abc", "name": "Holocene", "uri": "spotify:track:abc"}},
				},
			})
		})

		track, err := srv.SearchTrack(context.Background(), testToken(), "Holocene / Live", "Bon Iver")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if track.URI != "spotify:track:abc" {
			t.Errorf("expected uri spotify:track:abc, got %s", track.URI)
		}

		want := "q=track%3AHolocene%20/%20Live%20artist%3ABon%20Iver&type=track&limit=1"
		if rawQuery != want {
			t.Errorf("expected query %s, got %s", want, rawQuery)
		}
	})

	t.Run("SearchTrack failures", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			body   string
			want   error
		}{
			{name: "no results", status: 200, body: `{"tracks":{"items":[]}}`, want: shared.ErrTrackNotFound},
			{name: "missing tracks key", status: 200, body: `{}`, want: shared.ErrUnexpectedResponse},
			{name: "hit without uri", status: 200, body: `{"tracks":{"items":[{"id":"x"}]}}`, want: shared.ErrUnexpectedResponse},
			{name: "malformed body", status: 200, body: `{"tracks":`, want: shared.ErrUnexpectedResponse},
			{name: "server error", status: 502, body: `bad gateway`, want: shared.ErrAPIRequest},
			{name: "expired token", status: 401, body: `{"error":"expired"}`, want: shared.ErrTokenExpired},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					_, _ = io.WriteString(w, tt.body)
				})

				_, err := srv.SearchTrack(context.Background(), testToken(), "a", "b")
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}

		t.Run("status error carries upstream body", func(t *testing.T) {
			srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, "try later")
			})

			_, err := srv.SearchTrack(context.Background(), testToken(), "a", "b")
			var status *StatusError
			if !errors.As(err, &status) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if status.StatusCode != 503 || status.Body != "try later" || !status.Temporary() {
				t.Errorf("unexpected status error %+v", status)
			}
		})

		t.Run("no token", func(t *testing.T) {
			srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("request should not be sent without a token")
			})

			_, err := srv.SearchTrack(context.Background(), nil, "a", "b")
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})

	t.Run("UserProfile and TopArtists", func(t *testing.T) {
		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1/me":
				writeJSON(t, w, map[string]any{"id": "user1", "display_name": "User One"})
			case "/v1/me/top/artists":
				if r.URL.Query().Get("limit") != "10" {
					t.Errorf("expected limit 10, got %s", r.URL.Query().Get("limit"))
				}
				writeJSON(t, w, map[string]any{"items": []map[string]any{{"id": "1", "name": "Joji"}, {"id": "2", "name": "Clairo"}}})
			default:
				http.NotFound(w, r)
			}
		})

		user, err := srv.UserProfile(context.Background(), testToken())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if user.ID != "user1" || user.DisplayName != "User One" {
			t.Errorf("unexpected user %+v", user)
		}

		artists, err := srv.TopArtists(context.Background(), testToken(), 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(artists) != 2 || artists[0].Name != "Joji" || artists[1].Name != "Clairo" {
			t.Errorf("unexpected artists %+v", artists)
		}
	})

	t.Run("SearchArtist and ArtistTopTracks", func(t *testing.T) {
		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/v1/search" && r.URL.Query().Get("q") == "Nobody":
				writeJSON(t, w, map[string]any{"artists": map[string]any{"items": []any{}}})
			case r.URL.Path == "/v1/search":
				if r.URL.Query().Get("type") != "artist" {
					t.Errorf("expected artist search, got %s", r.URL.Query().Get("type"))
				}
				writeJSON(t, w, map[string]any{"artists": map[string]any{"items": []map[string]any{{"id": "art1", "name": r.URL.Query().Get("q")}}}})
			case r.URL.Path == "/v1/artists/art1/top-tracks":
				if r.URL.Query().Get("market") != DefaultMarket {
					t.Errorf("expected default market, got %s", r.URL.Query().Get("market"))
				}
				writeJSON(t, w, map[string]any{"tracks": []map[string]any{{"id": "t1", "name": "Glimpse of Us", "uri": "spotify:track:t1"}}})
			default:
				http.NotFound(w, r)
			}
		})

		artist, err := srv.SearchArtist(context.Background(), testToken(), "Joji")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if artist.ID != "art1" {
			t.Errorf("expected artist id art1, got %s", artist.ID)
		}

		if _, err := srv.SearchArtist(context.Background(), testToken(), "Nobody"); !errors.Is(err, shared.ErrArtistNotFound) {
			t.Errorf("expected ErrArtistNotFound, got %v", err)
		}
		if _, err := srv.SearchArtist(context.Background(), testToken(), "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		tracks, err := srv.ArtistTopTracks(context.Background(), testToken(), artist.ID, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].Name != "Glimpse of Us" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
	})

	t.Run("SeveralTracks chunks and keeps order", func(t *testing.T) {
		var calls int
		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			ids := strings.Split(r.URL.Query().Get("ids"), ",")
			if len(ids) > 50 {
				t.Errorf("expected at most 50 ids per request, got %d", len(ids))
			}

			tracks := make([]any, 0, len(ids))
			for _, id := range ids {
				if id == "gone" {
					tracks = append(tracks, nil)
					continue
				}
				tracks = append(tracks, map[string]any{
					"id": id, "name": "song " + id, "uri": "spotify:track:" + id,
					"album": map[string]any{"name": "album", "images": []map[string]any{{"url": "http://img/" + id}}},
				})
			}
			writeJSON(t, w, map[string]any{"tracks": tracks})
		})

		ids := make([]string, 0, 60)
		for i := range 60 {
			ids = append(ids, strings.Repeat("x", i%3+1)+string(rune('a'+i%26)))
		}
		ids[10] = "gone"

		tracks, err := srv.SeveralTracks(context.Background(), testToken(), ids)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 requests, got %d", calls)
		}
		if len(tracks) != 59 {
			t.Fatalf("expected 59 tracks, got %d", len(tracks))
		}
		if tracks[0].ID != ids[0] || tracks[10].ID != ids[11] || tracks[58].ID != ids[59] {
			t.Error("expected tracks in input order with unknown ids skipped")
		}

		model := tracks[0].Model()
		if model.ImageURL != "http://img/"+ids[0] || model.Album != "album" {
			t.Errorf("unexpected model %+v", model)
		}
	})

	t.Run("CreatePlaylist and AddTracks", func(t *testing.T) {
		var created map[string]any
		var batches [][]string

		srv := newTestSpotify(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected json content type, got %s", r.Header.Get("Content-Type"))
			}

			switch r.URL.Path {
			case "/v1/users/user1/playlists":
				_ = json.NewDecoder(r.Body).Decode(&created)
				w.WriteHeader(http.StatusCreated)
				writeJSON(t, w, map[string]any{"id": "pl1", "name": created["name"], "external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/pl1"}})
			case "/v1/playlists/pl1/tracks":
				var body struct {
					URIs []string `json:"uris"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				batches = append(batches, body.URIs)
				w.WriteHeader(http.StatusCreated)
				writeJSON(t, w, map[string]string{"snapshot_id": "s"})
			default:
				http.NotFound(w, r)
			}
		})

		playlist, err := srv.CreatePlaylist(context.Background(), testToken(), "user1", "Rainy Day", "Soft songs", false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if playlist.ID != "pl1" || playlist.ExternalURLs.Spotify == "" {
			t.Errorf("unexpected playlist %+v", playlist)
		}
		if created["name"] != "Rainy Day" || created["description"] != "Soft songs" || created["public"] != false {
			t.Errorf("unexpected create body %v", created)
		}

		uris := make([]string, 150)
		for i := range uris {
			uris[i] = "spotify:track:" + strings.Repeat("a", i%5+1)
		}
		if err := srv.AddTracks(context.Background(), testToken(), "pl1", uris); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(batches) != 2 || len(batches[0]) != 100 || len(batches[1]) != 50 {
			t.Errorf("expected batches of 100 and 50, got %d batches", len(batches))
		}
		if batches[1][0] != uris[100] {
			t.Error("expected second batch to continue where the first stopped")
		}

		if err := srv.AddTracks(context.Background(), testToken(), "", uris); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("quote", func(t *testing.T) {
		tests := map[string]string{
			"Bon Iver":       "Bon%20Iver",
			"AC/DC":          "AC/DC",
			"Rock & Roll":    "Rock%20%26%20Roll",
			"café":           "caf%C3%A9",
			"what's up?":     "what%27s%20up%3F",
			"a-b_c.d~e":      "a-b_c.d~e",
			"Guns N' Roses+": "Guns%20N%27%20Roses%2B",
		}
		for in, want := range tests {
			if got := quote(in); got != want {
				t.Errorf("quote(%q) = %s, want %s", in, got, want)
			}
		}
	})
}

func TestRefreshableTokenSource(t *testing.T) {
	t.Run("calls callback on first token fetch", func(t *testing.T) {
		var captured *oauth2.Token
		source := &refreshableTokenSource{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
			callback: func(token *oauth2.Token) { captured = token },
		}

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if captured == nil || captured.AccessToken != "test_token" {
			t.Errorf("expected captured token, got %v", captured)
		}
		if token.AccessToken != "test_token" {
			t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
		}
	})

	t.Run("calls callback only when token changes", func(t *testing.T) {
		callCount := 0
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		source := &refreshableTokenSource{
			source:   mock,
			callback: func(*oauth2.Token) { callCount++ },
		}

		_, _ = source.Token()
		_, _ = source.Token()
		if callCount != 1 {
			t.Errorf("expected callback called once, got %d", callCount)
		}

		mock.token = &oauth2.Token{AccessToken: "token2"}
		_, _ = source.Token()
		if callCount != 2 {
			t.Errorf("expected callback called twice, got %d", callCount)
		}
	})

	t.Run("handles nil callback", func(t *testing.T) {
		source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "t"}}}
		if _, err := source.Token(); err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		source := &refreshableTokenSource{
			source:   &mockTokenSource{err: errors.New("token source error")},
			callback: func(*oauth2.Token) { t.Error("callback should not be called on error") },
		}

		token, err := source.Token()
		if err == nil || !strings.Contains(err.Error(), "token source error") {
			t.Errorf("expected source error, got %v", err)
		}
		if token != nil {
			t.Error("expected nil token on error")
		}
	})
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"two words", "two%20words"},
		{"C++", "C%2B%2B"},
		{"AC/DC", "AC/DC"},
		{"Simon & Garfunkel", "Simon%20%26%20Garfunkel"},
		{"~tilde", "~tilde"},
		{"a+b c/d&e~f", "a%2Bb%20c/d%26e~f"},
		{"Beyoncé", "Beyonc%C3%A9"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := quote(tt.in); got != tt.want {
				t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("trackQuery", func(t *testing.T) {
		want := "q=track%3AHey%20%2B%20You%20artist%3AAC/DC&type=track&limit=1"
		if got := trackQuery("Hey + You", "AC/DC"); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}
