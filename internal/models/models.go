// package models defines the data model for playlist generation
package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackURIPrefix is the prefix of a Spotify track URI.
const TrackURIPrefix = "spotify:track:"

// Song is one (title, artist) pair suggested by the recommender. An empty Artist means the artist is absent.
type Song struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
}

// HasArtist reports whether the suggestion named an artist.
func (s Song) HasArtist() bool { return s.Artist != "" }

func (s Song) String() string {
	if !s.HasArtist() {
		return s.Title
	}
	return s.Title + " - " + s.Artist
}

// PlaylistSuggestion is a parsed recommendation. Songs keep the order they were suggested in.
type PlaylistSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Songs       []Song `json:"songs"`
}

// FailureReason classifies why a song could not be resolved.
type FailureReason int

const (
	NoResults FailureReason = iota
	InvalidInput
	RequestFailed
	UnexpectedResponse
)

func (r FailureReason) String() string {
	switch r {
	case NoResults:
		return "No results"
	case InvalidInput:
		return "Invalid input"
	case RequestFailed:
		return "Request failed"
	case UnexpectedResponse:
		return "Unexpected response"
	default:
		return "Unknown"
	}
}

// MarshalText renders the reason as its display string.
func (r FailureReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// TrackFailure records a song that could not be resolved. Index is the song's position in the suggestion.
type TrackFailure struct {
	Index  int           `json:"index"`
	Song   string        `json:"song"`
	Artist string        `json:"artist,omitempty"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// TrackMatch is the outcome of resolving one song: either URI is set or Failure is.
type TrackMatch struct {
	Index   int
	Song    Song
	URI     string
	Cached  bool
	Failure *TrackFailure
}

// Resolved reports whether the match produced a URI.
func (m TrackMatch) Resolved() bool { return m.Failure == nil && m.URI != "" }

// ResolutionReport collects resolved URIs in input order alongside per-entry failures.
type ResolutionReport struct {
	Matches  []string       `json:"matches"`
	Failures []TrackFailure `json:"failures"`
	Indexes  []int          `json:"-"` // source index of each entry in Matches
}

// Add appends the outcome of a single match.
func (r *ResolutionReport) Add(m TrackMatch) {
	if m.Resolved() {
		r.Matches = append(r.Matches, m.URI)
		r.Indexes = append(r.Indexes, m.Index)
		return
	}
	if m.Failure != nil {
		r.Failures = append(r.Failures, *m.Failure)
	}
}

// Track is a resolved Spotify track as returned to clients.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	DurationMS int      `json:"duration_ms"`
	ImageURL   string   `json:"image_url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
}

// ArtistNames joins the track's artist names.
func (t Track) ArtistNames() string { return strings.Join(t.Artists, ", ") }

// Duration formats the track length as m:ss.
func (t Track) Duration() string {
	d := time.Duration(t.DurationMS) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// GeneratedPlaylist is the result of turning a prompt into resolved tracks.
type GeneratedPlaylist struct {
	ID          string         `json:"id,omitempty"`
	Prompt      string         `json:"prompt"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Songs       []Song         `json:"songs"`
	URIs        []string       `json:"song_uris"`
	Tracks      []Track        `json:"tracks"`
	Failures    []TrackFailure `json:"failures"`
	TopArtists  []string       `json:"top_artists,omitempty"`
}

// CreatedPlaylist describes a playlist created on Spotify.
type CreatedPlaylist struct {
	ID         string `json:"playlist_id"`
	URL        string `json:"url,omitempty"`
	TrackCount int    `json:"track_count"`
}

// Generation is a persisted record of a generated playlist.
type Generation struct {
	ID          string
	Prompt      string
	Title       string
	Description string
	Resolved    int
	Failed      int
	PlaylistID  string
	CreatedAt   time.Time
}

// TrackIDs extracts the ids from Spotify track URIs, skipping anything that is not a track URI.
func TrackIDs(uris []string) []string {
	ids := make([]string, 0, len(uris))
	for _, uri := range uris {
		if !strings.HasPrefix(uri, TrackURIPrefix) {
			continue
		}
		ids = append(ids, uri[strings.LastIndex(uri, ":")+1:])
	}
	return ids
}

// ResolvedTrack is a cached song → URI resolution. Key is the normalized "title|artist".
type ResolvedTrack struct {
	Key       string
	Title     string
	Artist    string
	URI       string
	Hits      int
	CreatedAt time.Time
	UpdatedAt time.Time
}
