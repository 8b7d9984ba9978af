package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Gemini  GeminiConfig  `toml:"gemini"`
}

// SpotifyConfig contains Spotify API credentials and the last stored user token.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	Expiry       string `toml:"expiry"` // RFC3339
}

// GeminiConfig contains generative language API settings.
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// DatabaseConfig contains database connection settings.
//
// An empty path disables the resolved-track cache and generation history.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   string   `toml:"rate_window"`
	SessionTTL   string   `toml:"session_ttl"`
	CookieSecure bool     `toml:"cookie_secure"`
}

// ResolverConfig contains track resolution settings.
type ResolverConfig struct {
	Interval string `toml:"interval"`
	Cache    bool   `toml:"cache"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Window parses the rate limit window, defaulting to one minute.
func (s ServerConfig) Window() time.Duration {
	return parseDuration(s.RateWindow, time.Minute)
}

// TTL parses the session lifetime, defaulting to 24 hours.
func (s ServerConfig) TTL() time.Duration {
	return parseDuration(s.SessionTTL, 24*time.Hour)
}

// PauseInterval parses the pause between search requests, defaulting to 100ms.
func (r ResolverConfig) PauseInterval() time.Duration {
	return parseDuration(r.Interval, 100*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Token builds an [oauth2.Token] from the stored credentials.
//
// Returns nil when neither an access nor a refresh token is stored.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
	}
	if s.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, s.Expiry); err == nil {
			token.Expiry = t
		}
	}
	return token
}

// Update stores a freshly issued token.
//
// Spotify omits the refresh token on some refresh responses, so an empty one keeps the previous value.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if token.Expiry.IsZero() {
		s.Expiry = ""
	} else {
		s.Expiry = token.Expiry.UTC().Format(time.RFC3339)
	}
	return nil
}

// RequireSpotify reports whether the Spotify client credentials are set.
func (c *Config) RequireSpotify() error {
	s := c.Credentials.Spotify
	if s.ClientID == "" || s.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	return nil
}

// RequireGemini reports whether a Gemini API key is set.
func (c *Config) RequireGemini() error {
	if c.Credentials.Gemini.APIKey == "" {
		return fmt.Errorf("%w: gemini api_key must be set", ErrMissingCredentials)
	}
	return nil
}

// ApplyEnv loads .env files (missing files are ignored) and overrides config values with environment variables.
func (c *Config) ApplyEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString(&c.Credentials.Spotify.ClientID, "CLIENT_ID")
	setString(&c.Credentials.Spotify.ClientSecret, "CLIENT_SECRET")
	setString(&c.Credentials.Spotify.RedirectURI, "REDIRECT_URI")
	setString(&c.Credentials.Spotify.RefreshToken, "REFRESH_TOKEN")
	setString(&c.Credentials.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Credentials.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Database.Path, "MOODMIX_DB_PATH")

	if v := os.Getenv("MOODMIX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// LoadConfig reads a TOML configuration file on top of the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// LoadOrDefault loads the config at path when it exists, falling back to defaults, then applies environment overrides.
//
// A file that cannot be read or parsed yields the defaults (with overrides applied) and the error.
func LoadOrDefault(path string) (*Config, error) {
	config := DefaultConfig()
	var loadErr error
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadConfig(path)
		if err != nil {
			loadErr = err
		} else {
			config = loaded
		}
	}
	config.ApplyEnv()
	return config, loadErr
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path with owner-only permissions.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
