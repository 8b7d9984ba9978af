package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/repositories"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/desertthunder/moodmix/internal/tasks"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	spotify     services.SpotifyAPI
	recommender tasks.Recommender
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	errOutput   io.Writer
	input       io.Reader
	db          *sql.DB
	ownsDB      bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Spotify     services.SpotifyAPI
	Recommender tasks.Recommender
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	ErrOutput   io.Writer // progress narration; defaults to stderr so stdout stays parseable
	Input       io.Reader
	DB          *sql.DB // opened lazily from config when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		spotify:     opts.Spotify,
		recommender: opts.Recommender,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		errOutput:   opts.ErrOutput,
		input:       opts.Input,
		db:          opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, generateCommand, parseCommand, authCommand, spotifyCommand,
		setupCommand, cacheCommand, historyCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the runner and the components it builds.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() {
	if r.db != nil && r.ownsDB {
		r.db.Close()
		r.db = nil
	}
}

// database returns the sqlite handle, opening and migrating it on first use.
// Returns [shared.ErrMissingConfig] when no database path is configured.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.ownsDB = true
	return db, nil
}

func (r *Runner) requireSpotify() error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized (set client_id and client_secret)", shared.ErrServiceUnavailable)
	}
	return nil
}

func (r *Runner) requireRecommender() error {
	if r.recommender == nil {
		return fmt.Errorf("%w: recommender not initialized (set credentials.gemini.api_key)", shared.ErrServiceUnavailable)
	}
	return nil
}

// engine builds the playlist engine. The resolved-track cache and generation history are
// attached when a database is configured; a database that cannot be opened only disables them.
func (r *Runner) engine() (*tasks.PlaylistEngine, error) {
	if err := r.requireSpotify(); err != nil {
		return nil, err
	}
	if err := r.requireRecommender(); err != nil {
		return nil, err
	}

	resolver := tasks.NewResolver(r.spotify, r.config.Resolver.PauseInterval(), r.logger)
	engine := tasks.NewPlaylistEngine(r.spotify, r.recommender, resolver, r.logger)

	if r.db == nil && r.config.Database.Path == "" {
		return engine, nil
	}

	db, err := r.database()
	if err != nil {
		r.logger.Warn("database unavailable, continuing without cache and history", "error", err)
		return engine, nil
	}
	if r.config.Resolver.Cache {
		resolver.WithCache(repositories.NewTrackCacheAdapter(repositories.NewTrackRepository(db)))
	}
	engine.WithHistory(repositories.NewGenerationRepository(db))
	return engine, nil
}

// userToken returns the stored user token or [shared.ErrNotAuthenticated].
func (r *Runner) userToken() (*oauth2.Token, error) {
	token := r.config.Credentials.Spotify.Token()
	if token == nil {
		return nil, fmt.Errorf("%w: run 'moodmix auth' first", shared.ErrNotAuthenticated)
	}
	return token, nil
}

// saveTokens stores token in the config and writes it to the config path when one is set.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("tokens saved", "path", r.configPath)
	return nil
}

// keepToken saves a refreshed token, logging instead of failing the command.
func (r *Runner) keepToken(token *oauth2.Token) {
	if token == nil {
		return
	}
	if err := r.saveTokens(token); err != nil {
		r.logger.Warn("could not save refreshed token", "error", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// narrate writes a progress line to the error output.
func (r *Runner) narrate(format string, args ...any) {
	fmt.Fprintf(r.errOutput, format, args...)
}

// followProgress prints updates until the returned stop function is called.
// stop closes the channel and waits for the printer to drain it.
func (r *Runner) followProgress() (chan tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.ResolveTracks:
				r.narrate("   %s\n", update.Message)
			case tasks.Complete:
				r.narrate("✓ %s\n", update.Message)
			default:
				r.narrate("→ %s\n", update.Message)
			}
		}
	}()

	return progress, func() {
		close(progress)
		<-done
	}
}
