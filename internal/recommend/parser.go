package recommend

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/desertthunder/moodmix/internal/models"
	"github.com/desertthunder/moodmix/internal/shared"
)

const (
	segmentDelimiter = "__"
	entrySeparator   = ","
	artistSeparator  = " - "
)

// Parse converts a recommender reply of the form
//
//	[Title] __ [Description] __ [Song - Artist, Song - Artist, ...]
//
// into a [models.PlaylistSuggestion].
//
// The grammar may appear anywhere in the reply; the leftmost match wins. Each bracketed segment is
// matched shortest-first and must close on the line it opened on, while whitespace (including
// newlines) is allowed around the delimiters. Anything else is an error wrapping [shared.ErrUpstreamFormat];
// malformed replies are never repaired.
func Parse(text string) (*models.PlaylistSuggestion, error) {
	segments, ok := findSegments(text)
	if !ok {
		return nil, fmt.Errorf("%w: expected \"[title] __ [description] __ [songs]\"", shared.ErrUpstreamFormat)
	}

	return &models.PlaylistSuggestion{
		Title:       strings.TrimSpace(segments[0]),
		Description: strings.TrimSpace(segments[1]),
		Songs:       ParseSongs(segments[2]),
	}, nil
}

// ParseSongs splits a comma-separated "Song - Artist" list. Blank entries are dropped and order is kept.
//
// Entries are split on the first " - " only, so "Song - Artist - Remix" yields the artist "Artist - Remix".
func ParseSongs(list string) []models.Song {
	songs := []models.Song{}
	for _, entry := range strings.Split(list, entrySeparator) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		title, artist, found := strings.Cut(entry, artistSeparator)
		if !found {
			songs = append(songs, models.Song{Title: entry})
			continue
		}
		songs = append(songs, models.Song{
			Title:  strings.TrimSpace(title),
			Artist: strings.TrimSpace(artist),
		})
	}
	return songs
}

// findSegments scans for the leftmost "[" that starts a complete three-segment match.
func findSegments(text string) ([3]string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		if segments, ok := matchSegment(text, i+1, 0, [3]string{}); ok {
			return segments, true
		}
	}
	return [3]string{}, false
}

// matchSegment tries each "]" on the current line as the end of segment n, shortest first,
// and backtracks to the next candidate when the rest of the grammar fails.
func matchSegment(text string, start, n int, segments [3]string) ([3]string, bool) {
	for end := start; end < len(text) && text[end] != '\n'; end++ {
		if text[end] != ']' {
			continue
		}

		segments[n] = text[start:end]
		if n == len(segments)-1 {
			return segments, true
		}

		next, ok := delimiter(text, end+1)
		if !ok {
			continue
		}
		if out, ok := matchSegment(text, next, n+1, segments); ok {
			return out, true
		}
	}
	return segments, false
}

// delimiter matches `\s*__\s*\[` at i and returns the index just past the "[".
func delimiter(text string, i int) (int, bool) {
	i = skipSpace(text, i)
	if !strings.HasPrefix(text[i:], segmentDelimiter) {
		return 0, false
	}
	i = skipSpace(text, i+len(segmentDelimiter))
	if i >= len(text) || text[i] != '[' {
		return 0, false
	}
	return i + 1, true
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}
