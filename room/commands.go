package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/queue"
	"github.com/slate-fm/maestro/spotify"
)

// randomLikedCount is how many liked tracks a master-random-liked pull adds.
const randomLikedCount = 3

// SubmitTrack resolves a pasted link, URI or bare id and queues the track at
// its fair position. A playlist submission replaces the fallback playlist
// instead.
func (r *Room) SubmitTrack(ctx context.Context, sessionID, input string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		r.mu.Unlock()
		return ErrInvalidSession
	}
	submitterName, submitterEmail := s.Name, s.Email
	c := r.conductorLocked()
	if c == nil || !c.HasSpotify() {
		r.mu.Unlock()
		return ErrNoConductor
	}
	token := c.AccessToken
	r.mu.Unlock()

	link, err := spotify.Parse(strings.TrimSpace(input))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch link.Kind {
	case spotify.KindTrack:
		// resolved below
	case spotify.KindPlaylist:
		return r.replaceFallbackPlaylist(ctx, token, link.ID)
	default:
		return fmt.Errorf("%w: only tracks and playlists can be submitted", ErrInvalidInput)
	}

	cctx, cancel := context.WithTimeout(ctx, requestBudget)
	track, err := r.provider.TrackInfo(cctx, token, link.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("looking up track: %w", err)
	}

	track.SubmitterName = submitterName
	track.SubmitterEmail = submitterEmail
	track.SubmittedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queue.Add(track); err != nil {
		return err
	}

	r.ledger.Append(&models.HistoryEvent{
		Kind:      models.EventTrackAdded,
		Timestamp: time.Now(),
		Name:      submitterName,
		Email:     submitterEmail,
		Track:     track.Clone(),
	})

	log.Info().Str("uri", track.URI).Str("by", submitterEmail).Msg("track queued")
	r.persistQueueLocked()
	r.persistHistoryLocked()
	r.broadcastTracksLocked()
	r.broadcastHistoryLocked()
	return nil
}

// replaceFallbackPlaylist validates a submitted playlist and swaps it in as
// the fallback source, reshuffled. Validation happens before any state
// changes; a broken playlist leaves the old fallback intact.
func (r *Room) replaceFallbackPlaylist(ctx context.Context, token, playlistID string) error {
	cctx, cancel := context.WithTimeout(ctx, requestBudget)
	info, err := r.provider.PlaylistInfo(cctx, token, playlistID)
	cancel()
	if err != nil {
		return fmt.Errorf("looking up playlist: %w", err)
	}

	cctx2, cancel2 := context.WithTimeout(ctx, requestBudget*4)
	tracks, err := r.provider.PlaylistTracks(cctx2, token, playlistID)
	cancel2()
	if err != nil {
		return fmt.Errorf("loading playlist tracks: %w", err)
	}
	if len(tracks) == 0 {
		return fmt.Errorf("%w: playlist has no playable tracks", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallbackPlaylist = info
	r.fallbackPlaylistURI = "spotify:playlist:" + playlistID
	r.queue.SetFallback(tracks, info.Name)

	log.Info().Str("playlist", info.Name).Int("tracks", len(tracks)).Msg("fallback playlist replaced")
	r.broadcastTracksLocked()
	r.broadcastModeLocked()
	return nil
}

// RemoveTrack deletes a queued track.
func (r *Room) RemoveTrack(sessionID, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		return ErrInvalidSession
	}

	if r.queue.Remove(uri) == nil {
		return fmt.Errorf("%w: track not in queue", ErrInvalidInput)
	}

	log.Info().Str("uri", uri).Str("by", s.Email).Msg("track removed")
	r.persistQueueLocked()
	r.broadcastTracksLocked()
	return nil
}

// DelayTrack pushes a queued track one position later. Already-last tracks
// stay put.
func (r *Room) DelayTrack(sessionID, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		return ErrInvalidSession
	}

	if r.queue.DelayOne(uri) {
		r.persistQueueLocked()
		r.broadcastTracksLocked()
	}
	return nil
}

// Jam toggles a participant's jam on a track. Jamming a queued fallback track
// promotes it into the user queue under the jammer's name; jamming the
// currently playing track (fallback included) is just a jam.
func (r *Room) Jam(sessionID, uri string, unjam bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() || s.Email == "" {
		return ErrInvalidSession
	}

	if r.current != nil && r.current.URI == uri {
		r.applyJamLocked(r.current, s, unjam)
		r.broadcastModeLocked()
		return nil
	}

	if t := r.queue.FindUser(uri); t != nil {
		r.applyJamLocked(t, s, unjam)
		r.persistQueueLocked()
		r.broadcastTracksLocked()
		return nil
	}

	if t := r.queue.FindFallback(uri); t != nil {
		if unjam {
			return nil
		}
		promoted, err := r.queue.Promote(uri, s.Email, s.Name)
		if err != nil {
			return err
		}
		r.ledger.Append(&models.HistoryEvent{
			Kind:      models.EventJam,
			Timestamp: time.Now(),
			Name:      s.Name,
			Email:     s.Email,
			Track:     promoted.Clone(),
		})
		log.Info().Str("uri", uri).Str("by", s.Email).Msg("fallback track promoted by jam")
		r.persistQueueLocked()
		r.persistHistoryLocked()
		r.broadcastTracksLocked()
		r.broadcastHistoryLocked()
		return nil
	}

	return fmt.Errorf("%w: track not found", ErrInvalidInput)
}

func (r *Room) applyJamLocked(t *models.Track, s *models.Session, unjam bool) {
	kind := models.EventJam
	if unjam {
		t.Unjam(s.Email)
		kind = models.EventUnjam
	} else {
		t.Jam(s.Email)
	}
	r.ledger.Append(&models.HistoryEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		Name:      s.Name,
		Email:     s.Email,
		Track:     t.Clone(),
	})
	r.persistHistoryLocked()
	r.broadcastHistoryLocked()
}

// MasterPlay starts or resumes room playback. Resuming picks up the current
// track where the player left it; a cold start nominates from the queue.
func (r *Room) MasterPlay(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if err := r.requireConductorLocked(sessionID); err != nil {
		r.mu.Unlock()
		return err
	}

	var cmds []playCommand
	if r.current != nil && r.currentConsumed {
		r.mode = models.ModePlaying
		r.lastChange = time.Now()
		cmds = r.resumeCommandsLocked()
		r.broadcastModeLocked()
	} else {
		next, isFallback := r.queue.PeekNext()
		if next == nil {
			r.mu.Unlock()
			return fmt.Errorf("%w: nothing to play", ErrInvalidInput)
		}
		cmds = r.setAndStartLocked(next, isFallback)
	}
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// resumeCommandsLocked replays the current track at the last observed
// position on the conductor and every follower.
func (r *Room) resumeCommandsLocked() []playCommand {
	var position int64
	if r.lastPlayback != nil && r.lastPlayback.URI == r.current.URI {
		position = r.lastPlayback.ProgressMs
	}
	cmds := r.playCommandsLocked(r.current.URI)
	for i := range cmds {
		cmds[i].positionMs = position
	}
	return cmds
}

// MasterPause pauses the room and the conductor's and followers' players.
func (r *Room) MasterPause(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if err := r.requireConductorLocked(sessionID); err != nil {
		r.mu.Unlock()
		return err
	}

	r.mode = models.ModePaused
	r.lastChange = time.Now()
	cmds := r.pauseCommandsLocked()
	r.broadcastModeLocked()
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// MasterSkip abandons the current track and nominates the next one. The skip
// timestamp arms the grace window so the loop doesn't reinterpret the jump.
func (r *Room) MasterSkip(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if err := r.requireConductorLocked(sessionID); err != nil {
		r.mu.Unlock()
		return err
	}

	s := r.sessions[sessionID]
	r.lastSkip = time.Now()
	r.expectedURI = ""

	if r.current != nil {
		r.ledger.Append(&models.HistoryEvent{
			Kind:      models.EventTrackSkip,
			Timestamp: time.Now(),
			Name:      s.Name,
			Email:     s.Email,
			Track:     r.current.Clone(),
		})
		r.ledger.RecordPlay(r.current, r.current.SubmitterName)
		r.persistHistoryLocked()
		r.broadcastHistoryLocked()
		r.broadcastPlayHistoryLocked()
	}

	var cmds []playCommand
	next, isFallback := r.queue.PeekNext()
	if next == nil {
		r.current = nil
		r.currentConsumed = false
		r.mode = models.ModePaused
		r.broadcastTracksLocked()
		r.broadcastModeLocked()
		cmds = r.pauseCommandsLocked()
	} else {
		cmds = r.setAndStartLocked(next, isFallback)
	}
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// StartFallback begins playing from the fallback tier regardless of the user
// queue, loading the configured playlist first if the tier is empty.
func (r *Room) StartFallback(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if err := r.requireConductorLocked(sessionID); err != nil {
		r.mu.Unlock()
		return err
	}
	empty := r.queue.FallbackLen() == 0
	r.mu.Unlock()

	if empty {
		if err := r.EnsureFallback(ctx); err != nil {
			return err
		}
	}

	r.mu.Lock()
	t := r.queue.PeekFallback()
	if t == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: fallback queue is empty", ErrInvalidInput)
	}
	cmds := r.setAndStartLocked(t, true)
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// SessionPlay opts a participant into following room playback on their own
// player, syncing them to the current track immediately.
func (r *Room) SessionPlay(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		r.mu.Unlock()
		return ErrInvalidSession
	}

	s.FollowMode = models.FollowModeFollow
	s.Send(models.Message{Type: models.MsgSessionMode, Data: sessionModePayload{Mode: s.FollowMode}})

	var cmds []playCommand
	if s.HasSpotify() && s.ID != r.masterID && r.mode == models.ModePlaying && r.current != nil {
		var position int64
		if r.lastPlayback != nil && r.lastPlayback.URI == r.current.URI {
			position = r.lastPlayback.ProgressMs
		}
		cmds = []playCommand{{sessionID: s.ID, token: s.AccessToken, uri: r.current.URI, positionMs: position}}
		s.Send(models.Message{Type: models.MsgPlayTrack, Data: playTrackPayload{URI: r.current.URI, PositionMs: position}})
	}
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// SessionPause opts a participant out of following and pauses their player.
func (r *Room) SessionPause(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		r.mu.Unlock()
		return ErrInvalidSession
	}

	s.FollowMode = models.FollowModePaused
	s.Send(models.Message{Type: models.MsgSessionMode, Data: sessionModePayload{Mode: s.FollowMode}})

	var cmds []playCommand
	if s.HasSpotify() && s.ID != r.masterID {
		cmds = []playCommand{{sessionID: s.ID, token: s.AccessToken, pause: true}}
	}
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// TakeMasterControl hands the conductor role to an allow-listed Spotify
// session on request. If the room is mid-track, the new conductor's player
// picks it up in place.
func (r *Room) TakeMasterControl(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		r.mu.Unlock()
		return ErrInvalidSession
	}
	if !r.canTakeMasterLocked(s) {
		r.mu.Unlock()
		return ErrNotAllowed
	}

	r.masterID = s.ID
	r.lastChange = time.Now()
	log.Info().Str("master", s.ID).Str("email", s.Email).Msg("conductor role taken")
	r.broadcastModeLocked()

	var cmds []playCommand
	if r.mode == models.ModePlaying && r.current != nil {
		var position int64
		if r.lastPlayback != nil && r.lastPlayback.URI == r.current.URI {
			position = r.lastPlayback.ProgressMs
		}
		cmds = []playCommand{{sessionID: s.ID, token: s.AccessToken, uri: r.current.URI, positionMs: position}}
	}
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
	return nil
}

// Airhorn blasts a sound effect to the whole room and records it.
func (r *Room) Airhorn(sessionID, sound string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		return ErrInvalidSession
	}

	r.broadcastLocked(models.Message{
		Type: models.MsgPlayAirhorn,
		Data: noticePayload{Message: s.Name, Sound: sound},
	})
	r.ledger.Append(&models.HistoryEvent{
		Kind:      models.EventAirhorn,
		Timestamp: time.Now(),
		Name:      s.Name,
		Email:     s.Email,
		Message:   sound,
	})
	r.persistHistoryLocked()
	r.broadcastHistoryLocked()
	return nil
}

// HistoryMessage appends a chat line to the room history.
func (r *Room) HistoryMessage(sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		return ErrInvalidSession
	}

	r.ledger.Append(&models.HistoryEvent{
		Kind:      models.EventMessage,
		Timestamp: time.Now(),
		Name:      s.Name,
		Email:     s.Email,
		Message:   text,
	})
	r.persistHistoryLocked()
	r.broadcastHistoryLocked()
	return nil
}

// RandomLikedAdd pulls a few random tracks from the conductor's liked songs
// and queues them under the conductor's name. Returns how many actually made
// it into the queue; already-queued tracks are skipped.
func (r *Room) RandomLikedAdd(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	if err := r.requireConductorLocked(sessionID); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	s := r.sessions[sessionID]
	token, name, email := s.AccessToken, s.Name, s.Email
	r.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, requestBudget*2)
	tracks, err := r.provider.RandomLiked(cctx, token, randomLikedCount)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("loading liked tracks: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, t := range tracks {
		t.SubmitterName = name
		t.SubmitterEmail = email
		t.SubmittedAt = time.Now()
		if err := r.queue.Add(t); err != nil {
			if errors.Is(err, queue.ErrDuplicate) {
				continue
			}
			return added, err
		}
		added++
		r.ledger.Append(&models.HistoryEvent{
			Kind:      models.EventTrackAdded,
			Timestamp: time.Now(),
			Name:      name,
			Email:     email,
			Track:     t.Clone(),
		})
	}
	if added == 0 {
		return 0, nil
	}

	log.Info().Int("added", added).Str("by", email).Msg("random liked tracks queued")
	r.persistQueueLocked()
	r.persistHistoryLocked()
	r.broadcastTracksLocked()
	r.broadcastHistoryLocked()
	return added, nil
}

// Ping answers a heartbeat frame and refreshes liveness.
func (r *Room) Ping(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.LastHeartbeat = time.Now()
		s.Send(models.Message{Type: models.MsgPong})
	}
}

// Resync re-pushes the full room view to one session on request.
func (r *Room) Resync(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		r.sendSnapshotsLocked(s)
	}
}

func (r *Room) requireConductorLocked(sessionID string) error {
	if r.masterID == "" {
		return ErrNoConductor
	}
	if sessionID != r.masterID {
		return ErrNotConductor
	}
	s, ok := r.sessions[sessionID]
	if !ok || !s.HasSpotify() {
		return ErrNoConductor
	}
	return nil
}
