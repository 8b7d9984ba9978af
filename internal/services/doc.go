// Package services talks to the upstream HTTP APIs: the Spotify Web API and the Gemini generative language API.
//
// # Spotify
//
// [SpotifyService] implements [SpotifyAPI]. It is stateless over user credentials: every user-scoped
// call takes the [oauth2.Token] to send, so one instance serves every session. Tokens come from
// [SpotifyService.Exchange] (authorization code), [SpotifyService.Refresh] (refresh grant, always forced)
// and [SpotifyService.AppToken] (client credentials).
//
// Track search uses an exact-field query (track:<title> artist:<artist>) and asks for a single hit.
// Playlist writes are chunked to the API limits: 50 ids per track lookup, 100 uris per add.
//
// # Gemini
//
// [GeminiClient] posts a single user turn to models/{model}:generateContent and returns the first
// candidate's text. The API key travels in the x-goog-api-key header.
//
// # Circuit breaking
//
// [BreakerClient] and [BreakerRecommender] wrap the clients with sony/gobreaker. Only transport
// failures and 5xx responses count against the breaker; rejected calls wrap [shared.ErrCircuitOpen].
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : no token supplied
//   - [shared.ErrAPIRequest] : transport failure or non-2xx response ([StatusError] carries the status and body)
//   - [shared.ErrTokenExpired] : 401 from the upstream
//   - [shared.ErrUnexpectedResponse] : body could not be decoded or lacks required fields
//   - [shared.ErrTrackNotFound], [shared.ErrArtistNotFound] : search returned nothing
package services
