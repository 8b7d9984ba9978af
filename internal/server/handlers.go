package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/moodmix/internal/shared"
	"github.com/desertthunder/moodmix/internal/tasks"
	"golang.org/x/oauth2"
)

// PromptRequest is the body of POST /generate-recommendations.
type PromptRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
}

// PlaylistRequest is the body of POST /generate_playlist.
type PlaylistRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	SongURIs     []string `json:"song_uris" validate:"required,dive,startswith=spotify:track:"`
	GenerationID string   `json:"generation_id,omitempty"`
}

// PlaylistResponse is the body returned after creating a playlist.
type PlaylistResponse struct {
	Message    string `json:"message"`
	PlaylistID string `json:"playlist_id"`
	URL        string `json:"url,omitempty"`
	TrackCount int    `json:"track_count"`
}

// LoginResponse is the body returned by a successful OAuth callback.
type LoginResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, session.ID)
}

// handleLogin starts the authorization code flow for the caller's session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		s.writeErr(w, r, fmt.Errorf("failed to generate state: %w", err))
		return
	}

	session := SessionFrom(r.Context())
	if session == nil {
		session = s.sessions.Create()
	}
	s.sessions.BindState(state, session.ID)
	s.setSessionCookie(w, session)

	http.Redirect(w, r, s.spotify.AuthURL(state), http.StatusTemporaryRedirect)
}

// handleCallback exchanges the authorization code and stores the token on the session that started the login.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, "Authorization failed: "+errParam)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusUnprocessableEntity, "code is required")
		return
	}

	sessionID, ok := s.sessions.ConsumeState(query.Get("state"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	token, err := s.spotify.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Warn("token exchange failed", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to get token from Spotify")
		return
	}

	session, err := s.sessions.Get(sessionID)
	if err != nil {
		session = s.sessions.Create()
	}
	if err := s.sessions.SetToken(session.ID, token); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.setSessionCookie(w, session)

	s.logger.Info("login successful", "session", session.ID)
	writeJSON(w, http.StatusOK, LoginResponse{
		Message:      "Spotify login successful",
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		SessionID:    session.ID,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session := SessionFrom(r.Context()); session != nil {
		s.sessions.Delete(session.ID)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// requestToken returns the session's token, else the configured fallback.
func (s *Server) requestToken(r *http.Request) (*oauth2.Token, error) {
	if session := SessionFrom(r.Context()); session.Authenticated() {
		return session.Token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, shared.ErrNotAuthenticated
}

// storeToken keeps a refreshed token where it came from.
func (s *Server) storeToken(r *http.Request, token *oauth2.Token) {
	if token == nil {
		return
	}
	if session := SessionFrom(r.Context()); session.Authenticated() {
		if err := s.sessions.SetToken(session.ID, token); err != nil {
			s.logger.Debug("could not store refreshed token", "session", session.ID, "error", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback != nil {
		s.fallback = token
	}
}

// validToken returns a usable access token, refreshing an expired one.
func (s *Server) validToken(ctx context.Context, r *http.Request) (*oauth2.Token, error) {
	token, err := s.requestToken(r)
	if err != nil {
		return nil, err
	}
	if token.Valid() || token.RefreshToken == "" {
		return token, nil
	}

	fresh, err := s.spotify.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	s.storeToken(r, fresh)
	return fresh, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, err := s.validToken(r.Context(), r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	user, err := s.spotify.UserProfile(r.Context(), token)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTopArtists(w http.ResponseWriter, r *http.Request) {
	token, err := s.validToken(r.Context(), r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	artists, err := s.spotify.TopArtists(r.Context(), token, tasks.TopArtistLimit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if msg := decodeRequest(r, &req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	token, err := s.requestToken(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	playlist, fresh, err := s.engine.BuildPlaylist(r.Context(), token, req.Prompt, nil)
	s.storeToken(r, fresh)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handleGeneratePlaylist(w http.ResponseWriter, r *http.Request) {
	var req PlaylistRequest
	if msg := decodeRequest(r, &req); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	token, err := s.requestToken(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	created, fresh, err := s.engine.CreatePlaylist(r.Context(), token, tasks.PlaylistRequest{
		GenerationID: req.GenerationID,
		Title:        req.Title,
		Description:  req.Description,
		URIs:         req.SongURIs,
	}, nil)
	s.storeToken(r, fresh)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PlaylistResponse{
		Message:    "Playlist creation completed!",
		PlaylistID: created.ID,
		URL:        created.URL,
		TrackCount: created.TrackCount,
	})
}
