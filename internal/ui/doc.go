// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through one generation at a time:
//  1. [PromptView] : Type how you feel
//  2. [GenerateView] : Watch the recommendation and track resolution progress
//  3. [ResultView] : Browse the resolved tracks and the songs that were not found
//  4. [CreateView] : Create the playlist on Spotify
//  5. [CreatedView] : Show the new playlist
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.Generator]; the final result arrives on a separate channel so the
// model is only ever mutated from Update.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, c, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
