// Package models defines the domain types shared by the recommender, resolver, HTTP server and CLI.
//
// The flow of data is:
//
//  1. [PlaylistSuggestion] : parsed from the recommender reply, an ordered list of [Song]
//  2. [TrackMatch] : outcome of resolving one [Song] into a Spotify URI
//  3. [ResolutionReport] : URIs in suggestion order plus one [TrackFailure] per unresolved song
//  4. [GeneratedPlaylist] : what the API and CLI return to the user
//  5. [CreatedPlaylist] : the playlist written to the user's Spotify account
//
// [Generation] is the optional persisted history record.
package models
