// Package server exposes playlist generation over HTTP and handles the CLI OAuth callback.
//
// # Routes
//
// [Server.Handler] builds a chi router:
//
//	GET  /                          {"Hello":"World"}
//	GET  /health                    liveness and session count
//	GET  /metrics                   Prometheus collectors
//	GET  /login                     redirect to Spotify authorization
//	GET  /callback                  exchange the code and store the token on the session
//	POST /logout                    drop the session
//	GET  /me                        the user's Spotify profile
//	GET  /top-artists               names of the user's top artists
//	POST /generate-recommendations  {prompt} → generated playlist
//	POST /generate_playlist         {title, description, song_uris} → created playlist
//
// The two generate routes share a per-IP rate limit from go-chi/httprate.
//
// # Sessions
//
// /login creates a [Session] in the [MemorySessionStore] and binds the OAuth state to it; /callback
// consumes the state and stores the token on that session. Requests carry the session id in the
// X-Session-ID header or the moodmix_session cookie. Without a session, handlers fall back to the token
// configured with [Server.WithFallbackToken] and otherwise answer 401 {"detail":"User not logged in"}.
// Refreshed tokens are written back where they came from.
//
// # Errors
//
// Every error body is {"detail": "..."}. Authentication errors map to 401, invalid bodies to 422,
// an open circuit to 503, unparsable recommendations to 500 and upstream API errors to the
// upstream status.
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves the one-shot local callback used by the CLI auth command. It validates the state
// parameter, exchanges the code and sends the result through a channel.
package server
