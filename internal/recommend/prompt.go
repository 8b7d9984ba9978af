package recommend

import (
	"strings"
)

const (
	persona = "You are a world-class song-recommending maestro with deep knowledge of modern pop, indie, and mainstream hits. "

	artistGuidance = ". You may include as few or as many of these artists as you like, " +
		"and you may also include songs from other artists with a similar sound, mood, or vibe but keep these at a maximum of 5 songs. " +
		"If I ask for specific artists (e.g. 'tracks by Taylor Swift and Jeremy Zucker'), " +
		"prioritize them by suggesting over half of the playlist with their songs while still including a few stylistically " +
		"compatible tracks unless I explicitly say otherwise. If I mention specific songs or lyrics, ENSURE that these songs are included. "

	formatInstructions = "Only recommend songs that actually exist on Spotify. " +
		"You will recommend around 20 songs and must strictly follow this format - include the brackets and underscores exactly as shown:\n\n" +
		"[Playlist Title] __ [Playlist Description] __ [Song name 1 - Artist Name, Song name 2 - Artist Name, Song name 3 - Artist Name, ... , Song name 15 - Artist Name]\n\n" +
		"Now, here's how I'm feeling: "
)

// BuildPrompt assembles the recommender request for a feeling.
//
// With top artists the model is steered toward them; with none it recommends from the mood alone.
func BuildPrompt(topArtists []string, feeling string) string {
	var b strings.Builder
	b.WriteString(persona)

	if len(topArtists) > 0 {
		b.WriteString("I will describe how I feel, and you will create a playlist that perfectly matches the mood, ")
		b.WriteString("drawing primarily from my top artists: ")
		b.WriteString(FormatArtists(topArtists))
		b.WriteString(artistGuidance)
	} else {
		b.WriteString("I will describe how I feel, and you will create a playlist that perfectly matches the mood. ")
	}

	b.WriteString(formatInstructions)
	b.WriteString(feeling)
	return b.String()
}

// FormatArtists renders names as a bracketed, quoted list: ['A', 'B'].
//
// Names containing a single quote are wrapped in double quotes instead.
func FormatArtists(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		switch {
		case strings.Contains(name, "'") && !strings.Contains(name, `"`):
			quoted[i] = `"` + name + `"`
		default:
			quoted[i] = "'" + strings.ReplaceAll(name, "'", `\'`) + "'"
		}
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
