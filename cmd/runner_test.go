package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	tu "github.com/desertthunder/moodmix/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const reply = "[Rainy Day] __ [Soft songs for grey skies] __ [Song A - Artist A, Song B - Artist B, Lost - Nobody]"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testRunner struct {
	*Runner
	spotify     *tu.MockSpotify
	recommender *tu.MockRecommender
	output      *bytes.Buffer
	errOutput   *bytes.Buffer
}

// newTestRunner builds a runner over mocks with a stored refresh token and an in-memory database.
func newTestRunner(t *testing.T, input string) *testRunner {
	t.Helper()

	spotify := tu.NewMockSpotify()
	spotify.AddTrack("Song A", "Artist A", "a1")
	spotify.AddTrack("Song B", "Artist B", "b1")
	spotify.Artists = []services.SpotifyArtist{{ID: "x", Name: "Artist A", Genres: []string{"indie"}}}

	recommender := &tu.MockRecommender{Reply: reply}

	config := shared.DefaultConfig()
	config.Credentials.Spotify.RefreshToken = "stored-refresh"
	config.Resolver.Cache = true
	config.Resolver.Interval = "1ms"

	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	runner := NewRunner(RunnerOpts{
		Config:      config,
		Spotify:     spotify,
		Recommender: recommender,
		Logger:      shared.NewLogger(&bytes.Buffer{}),
		Output:      output,
		ErrOutput:   errOutput,
		Input:       strings.NewReader(input),
		DB:          setupTestDB(t),
	})

	return &testRunner{Runner: runner, spotify: spotify, recommender: recommender, output: output, errOutput: errOutput}
}

// run executes args against the runner's command tree.
func (tr *testRunner) run(args ...string) error {
	app := &cli.Command{Name: "moodmix", Commands: tr.register()}
	return app.Run(context.Background(), append([]string{"moodmix"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			spotify := tu.NewMockSpotify()
			recommender := &tu.MockRecommender{}

			runner := NewRunner(RunnerOpts{
				Config:      config,
				Logger:      logger,
				Output:      output,
				HTTPClient:  httpClient,
				Spotify:     spotify,
				Recommender: recommender,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.spotify != spotify {
				t.Error("expected spotify to be set")
			}
			if runner.recommender != recommender {
				t.Error("expected recommender to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout and stderr", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.errOutput != os.Stderr {
				t.Error("expected errOutput to default to os.Stderr")
			}
			if runner.input != os.Stdin {
				t.Error("expected input to default to os.Stdin")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"serve", "generate", "parse", "auth", "spotify", "setup", "cache", "history", "tui"} {
			if !names[want] {
				t.Errorf("expected command %q to be registered", want)
			}
		}
	})

	t.Run("saveTokens", func(t *testing.T) {
		t.Run("saves tokens successfully", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")

			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "test_id"
			config.Credentials.Spotify.ClientSecret = "test_secret"
			if err := shared.SaveConfig(configPath, config); err != nil {
				t.Fatalf("failed to create test config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath})

			token := &oauth2.Token{AccessToken: "new_access_token", RefreshToken: "new_refresh_token"}
			if err := runner.saveTokens(token); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			loadedConfig, err := shared.LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to reload config: %v", err)
			}
			if loadedConfig.Credentials.Spotify.AccessToken != "new_access_token" {
				t.Errorf("expected access token to be updated, got %s", loadedConfig.Credentials.Spotify.AccessToken)
			}
			if loadedConfig.Credentials.Spotify.RefreshToken != "new_refresh_token" {
				t.Errorf("expected refresh token to be updated, got %s", loadedConfig.Credentials.Spotify.RefreshToken)
			}
		})

		t.Run("handles nil config error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/tmp/test.toml"})
			runner.config = nil

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if err == nil {
				t.Fatal("expected error with nil config")
			}
			if !strings.Contains(err.Error(), "config is nil") {
				t.Errorf("expected nil config error, got %v", err)
			}
		})

		t.Run("handles empty configPath", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config})

			if err := runner.saveTokens(&oauth2.Token{AccessToken: "new_token", RefreshToken: "new_refresh"}); err != nil {
				t.Fatalf("expected no error with empty path, got %v", err)
			}
			if config.Credentials.Spotify.AccessToken != "new_token" {
				t.Error("expected config to be updated in memory")
			}
		})

		t.Run("handles SaveConfig failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config:     shared.DefaultConfig(),
				ConfigPath: filepath.Join(t.TempDir(), "missing", "dir", "config.toml"),
			})

			err := runner.saveTokens(&oauth2.Token{AccessToken: "test"})
			if err == nil {
				t.Fatal("expected error with invalid path")
			}
			if !strings.Contains(err.Error(), "failed to save config") {
				t.Errorf("expected save config error, got %v", err)
			}
		})

		t.Run("handles Update error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				Config:     shared.DefaultConfig(),
				ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
			})

			err := runner.saveTokens(nil)
			if err == nil {
				t.Fatal("expected error when Update fails with nil token")
			}
			if !strings.Contains(err.Error(), "failed to update spotify configuration") {
				t.Errorf("expected update error, got %v", err)
			}
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected invalid credentials in chain, got %v", err)
			}
		})
	})

	t.Run("engine", func(t *testing.T) {
		t.Run("requires spotify", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Recommender: &tu.MockRecommender{}})
			if _, err := runner.engine(); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("requires recommender", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Spotify: tu.NewMockSpotify()})
			if _, err := runner.engine(); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("unavailable database only disables history", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "missing", "moodmix.db")

			runner := NewRunner(RunnerOpts{
				Config:      config,
				Spotify:     tu.NewMockSpotify(),
				Recommender: &tu.MockRecommender{},
				Logger:      shared.NewLogger(&bytes.Buffer{}),
			})
			if _, err := runner.engine(); err != nil {
				t.Errorf("expected engine without database, got %v", err)
			}
		})
	})
}

func TestGenerate(t *testing.T) {
	t.Run("PromptFlag", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("generate", "--prompt", "rainy afternoon"); err != nil {
			t.Fatalf("generate failed: %v", err)
		}

		out := tr.output.String()
		for _, want := range []string{"Playlist: Rainy Day", "Artist A - Song A", "Not found: 1"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q, got:\n%s", want, out)
			}
		}
		if !strings.Contains(tr.recommender.Prompt, "rainy afternoon") || !strings.Contains(tr.recommender.Prompt, "Artist A") {
			t.Errorf("unexpected recommender prompt %q", tr.recommender.Prompt)
		}
		if tr.errOutput.Len() == 0 {
			t.Error("expected progress on the error output")
		}
		if got := tr.config.Credentials.Spotify.AccessToken; got != "user-token" {
			t.Errorf("expected refreshed token to be kept, got %q", got)
		}
	})

	t.Run("PromptFromInput", func(t *testing.T) {
		tr := newTestRunner(t, "  late night drive \n")

		if err := tr.run("generate", "--format", "json"); err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if !strings.Contains(tr.output.String(), `"song_uris"`) {
			t.Errorf("expected JSON output, got %s", tr.output.String())
		}
		if !strings.Contains(tr.recommender.Prompt, "late night drive") {
			t.Errorf("prompt not read from input: %q", tr.recommender.Prompt)
		}
	})

	t.Run("MissingPrompt", func(t *testing.T) {
		tr := newTestRunner(t, "   ")

		if err := tr.run("generate"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("generate", "-p", "x", "--format", "xml"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("NotAuthenticated", func(t *testing.T) {
		tr := newTestRunner(t, "")
		tr.config.Credentials.Spotify.RefreshToken = ""

		if err := tr.run("generate", "-p", "x"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("CSVToFile", func(t *testing.T) {
		tr := newTestRunner(t, "")
		base := filepath.Join(t.TempDir(), "rainy")

		if err := tr.run("generate", "-p", "x", "--format", "csv", "--output", base); err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		tu.AssertFileExists(t, base+"_tracks.csv")
		tu.AssertFileExists(t, base+"_metadata.json")
	})

	t.Run("CreateAndRecordHistory", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("generate", "-p", "x", "--create"); err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if len(tr.spotify.AddedURIs) != 2 {
			t.Errorf("expected 2 tracks added, got %v", tr.spotify.AddedURIs)
		}
		if !strings.Contains(tr.errOutput.String(), "Playlist created: pl1") {
			t.Errorf("expected creation notice, got %s", tr.errOutput.String())
		}

		tr.output.Reset()
		if err := tr.run("history"); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		out := tr.output.String()
		if !strings.Contains(out, "Rainy Day") || !strings.Contains(out, "2 found, 1 not found") || !strings.Contains(out, "Playlist: pl1") {
			t.Errorf("unexpected history output:\n%s", out)
		}
	})

	t.Run("RecommenderFailure", func(t *testing.T) {
		tr := newTestRunner(t, "")
		tr.recommender.Err = errors.New("quota exceeded")

		err := tr.run("generate", "-p", "x")
		if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
			t.Errorf("expected recommender error, got %v", err)
		}
	})
}

func TestParse(t *testing.T) {
	t.Run("FromInput", func(t *testing.T) {
		tr := newTestRunner(t, "Sure! "+reply)

		if err := tr.run("parse"); err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		out := tr.output.String()
		for _, want := range []string{"Title: Rainy Day", "Songs: 3", "1. Artist A - Song A"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("FromFileAsJSON", func(t *testing.T) {
		tr := newTestRunner(t, "")
		path := filepath.Join(t.TempDir(), "reply.txt")
		if err := os.WriteFile(path, []byte(reply), 0644); err != nil {
			t.Fatal(err)
		}

		if err := tr.run("parse", "--json", path); err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !strings.Contains(tr.output.String(), `"title": "Rainy Day"`) {
			t.Errorf("expected JSON output, got %s", tr.output.String())
		}
	})

	t.Run("Unparsable", func(t *testing.T) {
		tr := newTestRunner(t, "no playlist here")

		if err := tr.run("parse"); !errors.Is(err, shared.ErrUpstreamFormat) {
			t.Errorf("expected ErrUpstreamFormat, got %v", err)
		}
	})
}

func TestCache(t *testing.T) {
	tr := newTestRunner(t, "")

	if err := tr.run("generate", "-p", "x"); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	tr.output.Reset()
	if err := tr.run("cache", "stats"); err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(tr.output.String(), "Cached resolutions: 2") {
		t.Errorf("unexpected stats output:\n%s", tr.output.String())
	}

	tr.output.Reset()
	if err := tr.run("cache", "clear"); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if !strings.Contains(tr.output.String(), "Removed 2 cached entries") {
		t.Errorf("unexpected clear output: %s", tr.output.String())
	}
}

func TestSpotifyCommands(t *testing.T) {
	t.Run("Me", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("spotify", "me"); err != nil {
			t.Fatalf("me failed: %v", err)
		}
		if !strings.Contains(tr.output.String(), "Test User") || !strings.Contains(tr.output.String(), "ID: user1") {
			t.Errorf("unexpected output:\n%s", tr.output.String())
		}
		if tr.spotify.CallLog() != "refresh,me" {
			t.Errorf("unexpected calls %q", tr.spotify.CallLog())
		}
	})

	t.Run("TopArtists", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("spotify", "top-artists", "--limit", "5"); err != nil {
			t.Fatalf("top-artists failed: %v", err)
		}
		if !strings.Contains(tr.output.String(), "1. Artist A") || !strings.Contains(tr.output.String(), "Genres: indie") {
			t.Errorf("unexpected output:\n%s", tr.output.String())
		}
	})

	t.Run("TopArtistsLimitOutOfRange", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("spotify", "top-artists", "--limit", "0"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("TopTracks", func(t *testing.T) {
		tr := newTestRunner(t, "")
		tr.spotify.ArtistResults["Artist A"] = &services.SpotifyArtist{ID: "art1", Name: "Artist A"}
		tr.spotify.TopTracks["art1"] = []services.SpotifyTrack{
			{ID: "t1", URI: "spotify:track:t1", Name: "Hit", Artists: []services.SpotifyArtist{{Name: "Artist A"}}},
		}

		if err := tr.run("spotify", "top-tracks", "--artist", "Artist A"); err != nil {
			t.Fatalf("top-tracks failed: %v", err)
		}
		out := tr.output.String()
		if !strings.Contains(out, "Top tracks for Artist A (PH)") || !strings.Contains(out, "1. Artist A - Hit") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("TopTracksUnknownArtist", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("spotify", "top-tracks", "--artist", "Nobody"); !errors.Is(err, shared.ErrArtistNotFound) {
			t.Errorf("expected ErrArtistNotFound, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		tr := newTestRunner(t, "")
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := tr.run("setup", "config", "--path", path); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)

		if err := tr.run("setup", "config", "--path", path); err == nil {
			t.Error("expected error when the config already exists")
		}
	})

	t.Run("Database", func(t *testing.T) {
		tr := newTestRunner(t, "")
		path := filepath.Join(t.TempDir(), "moodmix.db")

		if err := tr.run("setup", "database", "--path", path); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, path)

		if err := tr.run("setup", "database", "--path", path, "--rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
	})

	t.Run("DatabaseWithoutPath", func(t *testing.T) {
		tr := newTestRunner(t, "")

		if err := tr.run("setup", "database"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		addr     string
		path     string
		wantErr  bool
	}{
		{"configured", "http://127.0.0.1:8888/auth/callback", "127.0.0.1:8888", "/auth/callback", false},
		{"empty uses server", "", "127.0.0.1:3000", "/callback", false},
		{"relative", "/callback", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.RedirectURI = tt.redirect
			runner := NewRunner(RunnerOpts{Config: config})

			addr, path, err := runner.callbackAddr()
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if addr != tt.addr || path != tt.path {
				t.Errorf("got (%q, %q), want (%q, %q)", addr, path, tt.addr, tt.path)
			}
		})
	}
}
