// Package repositories implements SQLite persistence for resolved tracks and generation history.
//
// Key Implementations:
//   - [TrackRepository] : song → URI cache keyed by normalized title and artist, with hit counts
//   - [TrackCacheAdapter] : adapts [TrackRepository] to the resolver's cache interface
//   - [GenerationRepository] : history of generated playlists and the Spotify playlists created from them
//
// Repositories take a *sql.DB opened by shared.OpenDatabase with migrations applied.
package repositories
