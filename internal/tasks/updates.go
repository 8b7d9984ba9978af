package tasks

import (
	"fmt"

	"github.com/desertthunder/moodmix/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Authorize Phase = iota
	FetchTopArtists
	Recommend
	ParseReply
	ResolveTracks
	FetchTracks
	CreatePlaylist
	AddTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case Authorize:
		return "authorize"
	case FetchTopArtists:
		return "fetch_top_artists"
	case Recommend:
		return "recommend"
	case ParseReply:
		return "parse_reply"
	case ResolveTracks:
		return "resolve_tracks"
	case FetchTracks:
		return "fetch_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full, skip this update
	}
}

func authorizeUpdate(message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Authorize,
		Step:    1,
		Total:   1,
		Message: message,
	}
}

func topArtistsUpdate(names []string) ProgressUpdate {
	msg := fmt.Sprintf("Found %d top artists", len(names))
	if len(names) == 0 {
		msg = "No top artists available, recommending from mood alone"
	}
	return ProgressUpdate{
		Phase:   FetchTopArtists,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    names,
	}
}

func recommendUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Recommend,
		Step:    1,
		Total:   1,
		Message: "Generating recommendations...",
	}
}

func parsedUpdate(suggestion *models.PlaylistSuggestion) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ParseReply,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s (%d songs)", suggestion.Title, len(suggestion.Songs)),
		Data:    suggestion,
	}
}

func resolveTrackUpdate(step, total int, match models.TrackMatch) ProgressUpdate {
	var msg string
	switch {
	case match.Resolved() && match.Cached:
		msg = fmt.Sprintf("[%d/%d] ✓ %s (cached)", step, total, match.Song)
	case match.Resolved():
		msg = fmt.Sprintf("[%d/%d] ✓ %s", step, total, match.Song)
	default:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, match.Song, match.Failure.Reason)
	}
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    match,
	}
}

func fetchTracksUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching details for %d tracks...", count),
	}
}

func createPlaylistUpdate(title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Creating playlist %q...", title),
	}
}

func addTracksUpdate(count int, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Adding %d tracks to playlist %s...", count, playlistID),
	}
}

func completeUpdate(message string, data any) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: message,
		Data:    data,
	}
}
