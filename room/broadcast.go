package room

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/spotify"
)

// Payload shapes for the outbound message kinds. One contract per kind; the
// payload is the authoritative state, so clients replace rather than merge.

type tracksPayload struct {
	Tracks []*models.Track `json:"tracks"`
}

type modePayload struct {
	Mode                 string            `json:"mode"`
	CurrentTrack         *models.Track     `json:"currentTrack,omitempty"`
	CurrentIsFallback    bool              `json:"currentIsFallback,omitempty"`
	MasterID             string            `json:"masterId,omitempty"`
	CanTakeMasterControl bool              `json:"canTakeMasterControl"`
	FallbackPlaylist     *spotify.Playlist `json:"fallbackPlaylist,omitempty"`
}

type sessionModePayload struct {
	Mode string `json:"mode"`
}

type sessionEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	HasSpotify bool   `json:"hasSpotify"`
	IsMaster   bool   `json:"isMaster"`
}

type noticePayload struct {
	Message string `json:"message"`
	Sound   string `json:"sound,omitempty"`
}

type playTrackPayload struct {
	URI        string `json:"uri"`
	PositionMs int64  `json:"positionMs,omitempty"`
}

// broadcastLocked fans a message to every session with an open transport.
// Closed transports are skipped silently; eviction is the cleanup task's job.
func (r *Room) broadcastLocked(msg models.Message) {
	for _, s := range r.sessions {
		if !s.Send(msg) && s.Conn != nil {
			log.Debug().Str("session", s.ID).Str("type", msg.Type).Msg("dropped outbound message")
		}
	}
}

// sendToLocked delivers a message to one session if it is connected.
func (r *Room) sendToLocked(sessionID string, msg models.Message) {
	if s, ok := r.sessions[sessionID]; ok {
		s.Send(msg)
	}
}

func (r *Room) currentForDisplayLocked() *models.Track {
	if r.current == nil {
		return nil
	}
	t := r.current.Clone()
	if r.lastPlayback != nil && r.lastPlayback.URI == t.URI {
		t.ProgressMs = r.lastPlayback.ProgressMs
		if r.lastPlayback.DurationMs > 0 {
			t.DurationMs = r.lastPlayback.DurationMs
		}
	}
	t.IsFallback = r.currentIsFallback
	return t
}

func (r *Room) broadcastTracksLocked() {
	r.broadcastLocked(models.Message{
		Type: models.MsgTracksList,
		Data: tracksPayload{Tracks: r.queue.Display()},
	})
}

// broadcastModeLocked sends the mode payload. canTakeMasterControl depends on
// the recipient, so the payload is built per session.
func (r *Room) broadcastModeLocked() {
	current := r.currentForDisplayLocked()
	for _, s := range r.sessions {
		s.Send(models.Message{
			Type: models.MsgMode,
			Data: modePayload{
				Mode:                 r.mode,
				CurrentTrack:         current,
				CurrentIsFallback:    r.currentIsFallback,
				MasterID:             r.masterID,
				CanTakeMasterControl: r.canTakeMasterLocked(s),
				FallbackPlaylist:     r.fallbackPlaylist,
			},
		})
	}
}

func (r *Room) sendModeLocked(s *models.Session) {
	s.Send(models.Message{
		Type: models.MsgMode,
		Data: modePayload{
			Mode:                 r.mode,
			CurrentTrack:         r.currentForDisplayLocked(),
			CurrentIsFallback:    r.currentIsFallback,
			MasterID:             r.masterID,
			CanTakeMasterControl: r.canTakeMasterLocked(s),
			FallbackPlaylist:     r.fallbackPlaylist,
		},
	})
}

func (r *Room) canTakeMasterLocked(s *models.Session) bool {
	return s.HasSpotify() && r.cfg.MasterAllowlist[strings.ToLower(s.Email)]
}

// sessionsListLocked builds the participant directory, de-duplicated by
// email with the most recently seen session winning.
func (r *Room) sessionsListLocked() []sessionEntry {
	newest := make(map[string]*models.Session)
	var anonymous []*models.Session

	for _, s := range r.sessions {
		if !s.LoggedIn() {
			continue
		}
		key := strings.ToLower(s.Email)
		if key == "" {
			anonymous = append(anonymous, s)
			continue
		}
		if prev, ok := newest[key]; !ok || s.LastHeartbeat.After(prev.LastHeartbeat) {
			newest[key] = s
		}
	}

	entries := make([]sessionEntry, 0, len(newest)+len(anonymous))
	add := func(s *models.Session) {
		entries = append(entries, sessionEntry{
			ID:         s.ID,
			Name:       s.Name,
			Email:      s.Email,
			HasSpotify: s.HasSpotify(),
			IsMaster:   s.ID == r.masterID,
		})
	}
	for _, s := range newest {
		add(s)
	}
	for _, s := range anonymous {
		add(s)
	}
	return entries
}

func (r *Room) broadcastSessionsLocked() {
	r.broadcastLocked(models.Message{
		Type: models.MsgSessionsList,
		Data: r.sessionsListLocked(),
	})
}

func (r *Room) broadcastHistoryLocked() {
	r.broadcastLocked(models.Message{
		Type: models.MsgHistory,
		Data: r.ledger.Recent(),
	})
}

func (r *Room) broadcastPlayHistoryLocked() {
	r.broadcastLocked(models.Message{
		Type: models.MsgPlayHistory,
		Data: r.ledger.RecentPlays(),
	})
}

// sendSnapshotsLocked pushes the full room view to one freshly attached
// session.
func (r *Room) sendSnapshotsLocked(s *models.Session) {
	s.Send(models.Message{Type: models.MsgTracksList, Data: tracksPayload{Tracks: r.queue.Display()}})
	r.sendModeLocked(s)
	s.Send(models.Message{Type: models.MsgSessionMode, Data: sessionModePayload{Mode: s.FollowMode}})
	s.Send(models.Message{Type: models.MsgSessionsList, Data: r.sessionsListLocked()})
	s.Send(models.Message{Type: models.MsgHistory, Data: r.ledger.Recent()})
	s.Send(models.Message{Type: models.MsgPlayHistory, Data: r.ledger.RecentPlays()})
}

// SendTracks pushes the current queue view to one session on request.
func (r *Room) SendTracks(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendToLocked(sessionID, models.Message{
		Type: models.MsgTracksList,
		Data: tracksPayload{Tracks: r.queue.Display()},
	})
}

// SendSessions pushes the participant directory to one session on request.
func (r *Room) SendSessions(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendToLocked(sessionID, models.Message{
		Type: models.MsgSessionsList,
		Data: r.sessionsListLocked(),
	})
}

// SendPlayHistory pushes the recent-plays list to one session on request.
func (r *Room) SendPlayHistory(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendToLocked(sessionID, models.Message{
		Type: models.MsgPlayHistory,
		Data: r.ledger.RecentPlays(),
	})
}

// NotifySession sends a targeted prominent message, e.g. "activate your
// Spotify player" when a play command finds no device.
func (r *Room) NotifySession(sessionID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendToLocked(sessionID, models.Message{
		Type: models.MsgProminentMessage,
		Data: noticePayload{Message: text},
	})
}

// Persistence helpers: best-effort, never blocking a mutation on failure.

func (r *Room) persistQueueLocked() {
	if r.store == nil {
		return
	}
	if err := r.store.SaveQueue(r.queue.UserTracks()); err != nil {
		log.Error().Err(err).Msg("persisting queue")
	}
}

func (r *Room) persistSessionsLocked() {
	if r.store == nil {
		return
	}
	capable := make([]*models.Session, 0)
	for _, s := range r.sessions {
		if s.HasSpotify() {
			capable = append(capable, s)
		}
	}
	if err := r.store.SaveSessions(capable); err != nil {
		log.Error().Err(err).Msg("persisting sessions")
	}
}

func (r *Room) persistHistoryLocked() {
	if r.store == nil {
		return
	}
	if err := r.store.SaveHistory(r.ledger.Events()); err != nil {
		log.Error().Err(err).Msg("persisting history")
	}
}
