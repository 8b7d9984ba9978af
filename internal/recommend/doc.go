// Package recommend builds recommender prompts and parses recommender replies.
//
// The recommender is asked to answer in a fixed bracket/delimiter grammar:
//
//	[Playlist Title] __ [Playlist Description] __ [Song - Artist, Song - Artist, ...]
//
// [BuildPrompt] produces the request text, optionally seeded with the user's top artists.
// [Parse] is a strict tokenizer for the reply. It does not repair output that strays from
// the grammar; such replies fail with [shared.ErrUpstreamFormat] and callers surface them as
// server errors.
package recommend
