package repositories

import (
	"errors"

	"github.com/desertthunder/moodmix/internal/shared"
)

// TrackCacheAdapter implements tasks.TrackCacher using TrackRepository.
//
// A miss is reported as (_, false, nil); only storage failures are errors.
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CachedURI returns the cached URI for a title and artist.
func (a *TrackCacheAdapter) CachedURI(title, artist string) (string, bool, error) {
	track, err := a.repo.Get(title, artist)
	if errors.Is(err, shared.ErrTrackNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return track.URI, true, nil
}

// CacheURI stores a resolved URI.
func (a *TrackCacheAdapter) CacheURI(title, artist, uri string) error {
	return a.repo.Put(title, artist, uri)
}
