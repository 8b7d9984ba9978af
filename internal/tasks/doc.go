// Package tasks turns a feeling into a Spotify playlist with real-time progress reporting.
//
// # Core Operations
//
// The [Generator] interface defines two operations:
//
//  1. [Generator.BuildPlaylist] : feeling → titled list of track URIs
//     - Issues an application token for searches and refreshes the user token
//     - Seeds the prompt with the user's top artists (degrades to mood only)
//     - Asks the [Recommender] and parses its reply
//     - Resolves each suggested song with a [Resolver]
//     - Fetches full track details for display
//
//  2. [Generator.CreatePlaylist] : URIs → private playlist on the user's account
//     - Refreshes the user token and looks up the user id
//     - Creates the playlist and adds the URIs in order
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Track Caching
//
// The optional [TrackCacher] interface lets the [Resolver] skip searches for songs it has resolved before.
// Cache errors are logged at debug level and never fail a resolution.
//
// # Implementation
//
// [PlaylistEngine] implements [Generator] with dependencies on:
//   - [services.SpotifyAPI] : Spotify accounts and Web API client
//   - [Recommender] : LLM client (services.GeminiClient behind a circuit breaker)
//   - [GenerationRecorder] : Optional history (repositories.GenerationRepository)
package tasks
