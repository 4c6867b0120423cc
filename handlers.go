package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/queue"
	"github.com/slate-fm/maestro/room"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

// writeError maps room errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, room.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, room.ErrUnknownSession), errors.Is(err, room.ErrInvalidSession):
		status = http.StatusUnauthorized
	case errors.Is(err, room.ErrNotConductor), errors.Is(err, room.ErrNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrNoConductor), errors.Is(err, queue.ErrDuplicate):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleLogin starts the Spotify authorization-code flow. An unknown or
// absent session id gets a fresh seat so the callback has somewhere to land.
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" || !a.room.SessionExists(sessionID) {
		sessionID = a.room.CreateEmptySession()
	}

	url, err := a.oauth.AuthURL(sessionID)
	if err != nil {
		log.Error().Err(err).Msg("building auth url")
		http.Error(w, "could not start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// handleCallback finishes the OAuth round trip: verify state, exchange the
// code, fetch the profile, and populate the waiting session.
func (a *app) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("spotify login denied")
		http.Redirect(w, r, a.rootURL+"/?login=denied", http.StatusTemporaryRedirect)
		return
	}

	sessionID, err := a.oauth.SessionFromState(r.URL.Query().Get("state"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid oauth state")
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Error().Err(err).Msg("code exchange failed")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	profile, err := a.spotify.Me(r.Context(), token.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("profile lookup failed")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.ID
	}

	if err := a.room.CompleteSpotifyLogin(sessionID, name, profile.Email,
		token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		writeError(w, err)
		return
	}

	log.Info().Str("email", profile.Email).Msg("spotify login completed")
	http.Redirect(w, r, a.rootURL+"/?session="+sessionID, http.StatusTemporaryRedirect)
}

// handleListenerLogin registers an identity-only participant: a name and
// email, no Spotify account.
func (a *app) handleListenerLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, room.ErrInvalidInput)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		writeError(w, room.ErrInvalidInput)
		return
	}

	id := a.room.CreateListener(req.Name, req.Email)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

// handleSession reports whether a stored session id is still usable, so
// returning clients know whether to skip the login screen.
func (a *app) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]bool{
		"exists":   a.room.SessionExists(id),
		"loggedIn": a.room.SessionLoggedIn(id),
	})
}

// handleSubmitTrack queues a track over plain HTTP, for clients that aren't
// holding a socket open.
func (a *app) handleSubmitTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Input     string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, room.ErrInvalidInput)
		return
	}

	if err := a.room.SubmitTrack(r.Context(), req.SessionID, req.Input); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRandomLiked queues a few random tracks from the conductor's liked
// songs.
func (a *app) handleRandomLiked(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, room.ErrInvalidInput)
		return
	}

	added, err := a.room.RandomLikedAdd(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

// handleAirhorns lists the available sound effects.
func (a *app) handleAirhorns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"airhorns": models.AirhornSounds})
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
