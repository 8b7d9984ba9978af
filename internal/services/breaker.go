package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/shared"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

// Breaker is a named circuit breaker shared by the calls to one upstream.
//
// Configuration:
//   - 3 trial requests in half-open state
//   - counts reset every minute while closed
//   - 2 minutes open before trying again
//   - opens at a 60% failure rate over at least 10 requests
//
// Only transport errors and 5xx responses count as failures. Client errors (401, 404)
// and decoding problems say nothing about upstream health.
type Breaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker[any]
	logger *log.Logger
}

// NewBreaker creates a closed breaker and publishes its state metrics.
func NewBreaker(name string, logger *log.Logger) *Breaker {
	if logger == nil {
		logger = log.Default()
	}
	b := &Breaker{name: name, logger: logger}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logger.Warn("opening circuit", "breaker", name, "failures", counts.TotalFailures, "requests", counts.Requests)
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state transition", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return b
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// countsAsFailure reports whether err reflects upstream health.
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode >= 500
	}
	return errors.Is(err, shared.ErrAPIRequest)
}

// guard runs fn through the breaker. A rejected call wraps [shared.ErrCircuitOpen].
func guard[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			b.logger.Warn("request rejected", "breaker", b.name, "error", err)
			return zero, fmt.Errorf("%w: %s: %v", shared.ErrCircuitOpen, b.name, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return zero, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()

	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", b.name, result)
	}
	return typed, nil
}

// guardErr runs an fn that only returns an error through the breaker.
func guardErr(b *Breaker, fn func() error) error {
	_, err := guard(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// BreakerClient wraps a [SpotifyAPI] with a circuit breaker.
type BreakerClient struct {
	client  SpotifyAPI
	breaker *Breaker
}

var _ SpotifyAPI = (*BreakerClient)(nil)

// NewBreakerClient guards client with a breaker named "spotify-api".
func NewBreakerClient(client SpotifyAPI, logger *log.Logger) *BreakerClient {
	return &BreakerClient{client: client, breaker: NewBreaker("spotify-api", logger)}
}

func (c *BreakerClient) Name() string {
	return c.client.Name()
}

// Breaker exposes the underlying breaker.
func (c *BreakerClient) Breaker() *Breaker {
	return c.breaker
}

func (c *BreakerClient) AuthURL(state string) string {
	return c.client.AuthURL(state)
}

func (c *BreakerClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return guard(c.breaker, func() (*oauth2.Token, error) { return c.client.Exchange(ctx, code) })
}

func (c *BreakerClient) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return guard(c.breaker, func() (*oauth2.Token, error) { return c.client.Refresh(ctx, token) })
}

func (c *BreakerClient) AppToken(ctx context.Context) (*oauth2.Token, error) {
	return guard(c.breaker, func() (*oauth2.Token, error) { return c.client.AppToken(ctx) })
}

func (c *BreakerClient) UserProfile(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error) {
	return guard(c.breaker, func() (*SpotifyUser, error) { return c.client.UserProfile(ctx, token) })
}

func (c *BreakerClient) TopArtists(ctx context.Context, token *oauth2.Token, limit int) ([]SpotifyArtist, error) {
	return guard(c.breaker, func() ([]SpotifyArtist, error) { return c.client.TopArtists(ctx, token, limit) })
}

func (c *BreakerClient) SearchTrack(ctx context.Context, token *oauth2.Token, title, artist string) (*SpotifyTrack, error) {
	return guard(c.breaker, func() (*SpotifyTrack, error) { return c.client.SearchTrack(ctx, token, title, artist) })
}

func (c *BreakerClient) SearchArtist(ctx context.Context, token *oauth2.Token, name string) (*SpotifyArtist, error) {
	return guard(c.breaker, func() (*SpotifyArtist, error) { return c.client.SearchArtist(ctx, token, name) })
}

func (c *BreakerClient) ArtistTopTracks(ctx context.Context, token *oauth2.Token, artistID, market string) ([]SpotifyTrack, error) {
	return guard(c.breaker, func() ([]SpotifyTrack, error) {
		return c.client.ArtistTopTracks(ctx, token, artistID, market)
	})
}

func (c *BreakerClient) SeveralTracks(ctx context.Context, token *oauth2.Token, trackIDs []string) ([]SpotifyTrack, error) {
	return guard(c.breaker, func() ([]SpotifyTrack, error) { return c.client.SeveralTracks(ctx, token, trackIDs) })
}

func (c *BreakerClient) CreatePlaylist(ctx context.Context, token *oauth2.Token, userID, name, description string, public bool) (*SpotifyPlaylist, error) {
	return guard(c.breaker, func() (*SpotifyPlaylist, error) {
		return c.client.CreatePlaylist(ctx, token, userID, name, description, public)
	})
}

func (c *BreakerClient) AddTracks(ctx context.Context, token *oauth2.Token, playlistID string, uris []string) error {
	return guardErr(c.breaker, func() error { return c.client.AddTracks(ctx, token, playlistID, uris) })
}

type recommender interface {
	Recommend(ctx context.Context, prompt string) (string, error)
}

// BreakerRecommender wraps a recommender client with a circuit breaker.
type BreakerRecommender struct {
	client  recommender
	breaker *Breaker
}

// NewBreakerRecommender guards client with a breaker named "gemini-api".
func NewBreakerRecommender(client recommender, logger *log.Logger) *BreakerRecommender {
	return &BreakerRecommender{client: client, breaker: NewBreaker("gemini-api", logger)}
}

func (r *BreakerRecommender) Recommend(ctx context.Context, prompt string) (string, error) {
	return guard(r.breaker, func() (string, error) { return r.client.Recommend(ctx, prompt) })
}
