package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/services"
	"github.com/desertthunder/moodmix/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultPause is the minimum spacing between search requests.
const DefaultPause = 100 * time.Millisecond

// TrackSearcher finds the single best track for a title and artist.
type TrackSearcher interface {
	SearchTrack(ctx context.Context, token *oauth2.Token, title, artist string) (*services.SpotifyTrack, error)
}

// TrackCacher stores resolved URIs so repeated suggestions skip the search.
//
// Lookups and stores are best effort: the resolver logs cache errors and carries on.
type TrackCacher interface {
	CachedURI(title, artist string) (string, bool, error)
	CacheURI(title, artist, uri string) error
}

// Resolver maps suggested songs to Spotify track URIs, one search per song, in order.
type Resolver struct {
	searcher TrackSearcher
	limiter  *rate.Limiter
	cache    TrackCacher
	logger   *log.Logger
}

// NewResolver creates a Resolver that spaces searches at least pause apart. A zero pause disables pacing.
func NewResolver(searcher TrackSearcher, pause time.Duration, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}

	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}

	return &Resolver{
		searcher: searcher,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// WithCache enables the resolved track cache.
func (r *Resolver) WithCache(cache TrackCacher) *Resolver {
	r.cache = cache
	return r
}

// Resolve searches for every song sequentially and never stops on a per-song failure.
//
// Matches keep the order of songs and failures carry the index of the song they came from.
// Every entry that is not served from the cache waits on the limiter first, whatever its outcome.
// The only error returned is the context's; the partial report is returned with it.
func (r *Resolver) Resolve(ctx context.Context, token *oauth2.Token, songs []models.Song, progress chan<- ProgressUpdate) (*models.ResolutionReport, error) {
	report := &models.ResolutionReport{Matches: []string{}, Failures: []models.TrackFailure{}}
	total := len(songs)

	for i, song := range songs {
		match, err := r.resolveOne(ctx, token, i, song)
		if err != nil {
			r.logger.Warn("resolution interrupted", "resolved", len(report.Matches), "remaining", total-i, "error", err)
			return report, err
		}

		report.Add(match)
		sendProgress(progress, resolveTrackUpdate(i+1, total, match))

		if match.Resolved() {
			r.logger.Info("found", "index", i, "song", song.String(), "uri", match.URI, "cached", match.Cached)
		} else {
			r.logger.Warn("not found", "index", i, "song", song.String(), "reason", match.Failure.Reason, "detail", match.Failure.Detail)
		}
	}

	if len(report.Failures) > 0 {
		r.logger.Warnf("%d of %d songs could not be resolved", len(report.Failures), total)
		for _, f := range report.Failures {
			r.logger.Debugf("  - %s - %s (%s)", f.Song, f.Artist, f.Reason)
		}
	}

	return report, nil
}

func (r *Resolver) resolveOne(ctx context.Context, token *oauth2.Token, index int, song models.Song) (models.TrackMatch, error) {
	match := models.TrackMatch{Index: index, Song: song}

	title := strings.TrimSpace(song.Title)
	artist := strings.TrimSpace(song.Artist)

	if title != "" && artist != "" {
		if uri, ok := r.lookup(title, artist); ok {
			match.URI = uri
			match.Cached = true
			metrics.RecordResolution("cached")
			return match, nil
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return match, err
	}

	if title == "" || artist == "" {
		match.Failure = failure(index, song, models.InvalidInput, "song title and artist are both required")
		metrics.RecordResolution(models.InvalidInput.String())
		return match, nil
	}

	track, err := r.searcher.SearchTrack(ctx, token, title, artist)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return match, ctxErr
		}
		reason := classify(err)
		match.Failure = failure(index, song, reason, err.Error())
		metrics.RecordResolution(reason.String())
		return match, nil
	}

	match.URI = track.URI
	metrics.RecordResolution("resolved")
	r.store(title, artist, track.URI)
	return match, nil
}

func (r *Resolver) lookup(title, artist string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	uri, ok, err := r.cache.CachedURI(title, artist)
	if err != nil {
		r.logger.Debug("cache lookup failed", "title", title, "artist", artist, "error", err)
		return "", false
	}
	return uri, ok && uri != ""
}

func (r *Resolver) store(title, artist, uri string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.CacheURI(title, artist, uri); err != nil {
		r.logger.Debug("cache store failed", "title", title, "artist", artist, "error", err)
	}
}

// classify maps a search error onto a failure reason.
func classify(err error) models.FailureReason {
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		return models.NoResults
	case errors.Is(err, shared.ErrUnexpectedResponse):
		return models.UnexpectedResponse
	case errors.Is(err, shared.ErrInvalidInput):
		return models.InvalidInput
	default:
		return models.RequestFailed
	}
}

func failure(index int, song models.Song, reason models.FailureReason, detail string) *models.TrackFailure {
	return &models.TrackFailure{
		Index:  index,
		Song:   song.Title,
		Artist: song.Artist,
		Reason: reason,
		Detail: detail,
	}
}

// summarize describes a report for logs.
func summarize(report *models.ResolutionReport) string {
	return fmt.Sprintf("%d resolved, %d failed", len(report.Matches), len(report.Failures))
}
