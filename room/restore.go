package room

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/spotify"
)

// Restore rebuilds room state from the persisted files at startup: sessions
// first (their tokens are refreshed or dropped), then the queue and history.
// Restored sessions come back disconnected; their owners reconnect and
// re-attach.
func (r *Room) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	sessions, err := r.store.LoadSessions()
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}
	for _, s := range sessions {
		cctx, cancel := context.WithTimeout(ctx, requestBudget)
		tok, err := r.provider.Refresh(cctx, s.RefreshToken)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("email", s.Email).Msg("restored session's token refresh failed, dropping credentials")
			s.AccessToken = ""
			s.RefreshToken = ""
		} else {
			s.AccessToken = tok.AccessToken
			if tok.RefreshToken != "" {
				s.RefreshToken = tok.RefreshToken
			}
			s.TokenExpiry = tok.Expiry
		}
		s.Conn = nil
		s.FollowMode = models.FollowModePaused
		s.LastHeartbeat = time.Now()

		r.mu.Lock()
		r.sessions[s.ID] = s
		r.dedupByEmailLocked(s)
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.assignConductorLocked()
	r.persistSessionsLocked()
	r.mu.Unlock()

	tracks, err := r.store.LoadQueue()
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}
	r.backfillArtwork(ctx, tracks)

	events, err := r.store.LoadHistory()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	r.mu.Lock()
	r.queue.Restore(tracks)
	r.ledger.Restore(events)
	r.mu.Unlock()

	log.Info().Int("sessions", len(sessions)).Int("tracks", len(tracks)).Int("events", len(events)).Msg("state restored")
	return nil
}

// backfillArtwork fills in album art missing from persisted queue entries,
// left over from an older on-disk format. Best-effort; needs a conductor.
func (r *Room) backfillArtwork(ctx context.Context, tracks []*models.Track) {
	token, ok := r.conductorToken()
	if !ok {
		return
	}

	for _, t := range tracks {
		if t.AlbumArtURL != "" {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, requestBudget)
		full, err := r.provider.TrackInfo(cctx, token, spotify.TrackID(t.URI))
		cancel()
		if err != nil {
			continue
		}
		t.AlbumArtURL = full.AlbumArtURL
		if t.Album == "" {
			t.Album = full.Album
		}
	}
}

// EnsureFallback loads the configured fallback playlist into the fallback
// tier when the tier is empty. Needs a conductor token; a room with no
// Spotify session yet simply tries again later.
func (r *Room) EnsureFallback(ctx context.Context) error {
	r.mu.Lock()
	if r.queue.FallbackLen() > 0 || r.cfg.FallbackPlaylist == "" {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	token, ok := r.conductorToken()
	if !ok {
		return ErrNoConductor
	}

	link, err := spotify.Parse(r.cfg.FallbackPlaylist)
	if err != nil || link.Kind != spotify.KindPlaylist {
		return fmt.Errorf("%w: fallback playlist setting is not a playlist", ErrInvalidInput)
	}

	return r.replaceFallbackPlaylist(ctx, token, link.ID)
}

// refreshSessionCredentials refreshes one session's access token after the
// provider rejected it. A failed refresh drops the credentials; the seat
// stays, and the conductor role moves on if it was theirs.
func (r *Room) refreshSessionCredentials(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.RefreshToken == "" {
		r.mu.Unlock()
		return
	}
	refreshToken := s.RefreshToken
	r.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, requestBudget)
	tok, err := r.provider.Refresh(cctx, refreshToken)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok = r.sessions[sessionID]
	if !ok {
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("email", s.Email).Msg("token refresh failed, dropping credentials")
		s.AccessToken = ""
		s.RefreshToken = ""
		if r.masterID == s.ID {
			r.masterID = ""
			r.assignConductorLocked()
			r.broadcastModeLocked()
		}
		r.persistSessionsLocked()
		r.broadcastSessionsLocked()
		return
	}

	s.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	s.TokenExpiry = tok.Expiry
	r.persistSessionsLocked()
	log.Debug().Str("email", s.Email).Msg("token refreshed")
}

// RefreshAllCredentials proactively refreshes every Spotify session's tokens
// so they never lapse mid-listen. Run periodically by StartMaintenance.
func (r *Room) RefreshAllCredentials(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.HasSpotify() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.refreshSessionCredentials(ctx, id)
	}
}
