// Package room is the authoritative coordinator for one shared-listening
// room: the participant registry, the queue, the playback reconciliation
// loop, and the broadcast fabric. All state mutations are serialised on one
// mutex; Spotify calls never happen while it is held.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/queue"
	"github.com/slate-fm/maestro/spotify"
	"github.com/slate-fm/maestro/store"
)

const (
	// graceWindow masks the provider's visible transition after any
	// commanded track change or manual skip.
	graceWindow = 3 * time.Second

	// failureWindow is how long a nominated track has to show up as
	// playing before the room gives up on it.
	failureWindow = 5 * time.Second

	cleanupInterval = 30 * time.Second
	refreshInterval = 30 * time.Minute
)

// Provider is the slice of the Spotify gateway the room drives. Satisfied by
// *spotify.Client; faked in tests.
type Provider interface {
	TrackInfo(ctx context.Context, token, id string) (*models.Track, error)
	PlaylistInfo(ctx context.Context, token, id string) (*spotify.Playlist, error)
	PlaylistTracks(ctx context.Context, token, id string) ([]*models.Track, error)
	Play(ctx context.Context, token string, uris []string, positionMs int64) error
	Pause(ctx context.Context, token string) error
	CurrentPlayback(ctx context.Context, token string) (*models.Playback, error)
	RandomLiked(ctx context.Context, token string, n int) ([]*models.Track, error)
	Refresh(ctx context.Context, refreshToken string) (*spotify.TokenResult, error)
}

// Config carries the room's tunables from the configuration layer.
type Config struct {
	PollInterval     time.Duration
	HeartbeatTimeout time.Duration
	MasterAllowlist  map[string]bool
	FallbackPlaylist string
	Debug            bool
}

// Room is the singleton room state. Everything behind mu.
type Room struct {
	mu sync.Mutex

	provider Provider
	store    *store.Store
	cfg      Config

	queue    *queue.Queue
	sessions map[string]*models.Session
	ledger   *Ledger

	mode              string
	current           *models.Track
	currentIsFallback bool
	currentConsumed   bool
	masterID          string

	fallbackPlaylist    *spotify.Playlist
	fallbackPlaylistURI string

	lastChange   time.Time
	lastSkip     time.Time
	lastPlayback *models.Playback

	// Playback-failure watch: armed by set-and-start, cleared on confirm.
	expectedURI        string
	expectedDeadline   time.Time
	expectedIsFallback bool

	// ticking prevents overlapping reconciliation ticks.
	ticking bool
}

// New builds an empty, paused room.
func New(provider Provider, st *store.Store, cfg Config) *Room {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	return &Room{
		provider: provider,
		store:    st,
		cfg:      cfg,
		queue:    queue.New(),
		sessions: make(map[string]*models.Session),
		ledger:   NewLedger(),
		mode:     models.ModePaused,
	}
}

func newSessionID() string {
	return uuid.NewString()
}

// CreateListener registers an identity-only participant and returns the new
// session id.
func (r *Room) CreateListener(name, email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &models.Session{
		ID:            newSessionID(),
		Name:          name,
		Email:         email,
		FollowMode:    models.FollowModePaused,
		LastHeartbeat: time.Now(),
	}
	r.sessions[s.ID] = s
	return s.ID
}

// CreateEmptySession reserves a seat ahead of the OAuth round trip. The
// session cannot log in until the callback populates it.
func (r *Room) CreateEmptySession() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &models.Session{
		ID:            newSessionID(),
		FollowMode:    models.FollowModePaused,
		LastHeartbeat: time.Now(),
	}
	r.sessions[s.ID] = s
	return s.ID
}

// SessionExists reports whether the id refers to a known session.
func (r *Room) SessionExists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// SessionLoggedIn reports whether the session exists and carries a complete
// identity.
func (r *Room) SessionLoggedIn(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return ok && s.LoggedIn()
}

// CompleteSpotifyLogin populates a session with the identity and tokens from
// a finished OAuth exchange.
func (r *Room) CompleteSpotifyLogin(sessionID, name, email, accessToken, refreshToken string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}

	s.Name = name
	s.Email = email
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.TokenExpiry = expiry
	s.LastHeartbeat = time.Now()

	r.dedupByEmailLocked(s)
	r.persistSessionsLocked()
	return nil
}

// AttachTransport wires an opened connection to its session: the transport
// edge's login step. Validates identity, de-duplicates by email, assigns the
// conductor if the seat is the first Spotify-capable one, and pushes the
// initial snapshots to the caller.
func (r *Room) AttachTransport(sessionID string, conn models.Transport) error {
	r.mu.Lock()

	s, ok := r.sessions[sessionID]
	if !ok || !s.LoggedIn() {
		r.mu.Unlock()
		return ErrInvalidSession
	}

	firstAttach := s.Conn == nil
	s.Conn = conn
	s.LastHeartbeat = time.Now()

	r.dedupByEmailLocked(s)
	adopt := r.assignConductorLocked()

	if firstAttach {
		r.ledger.Append(&models.HistoryEvent{
			Kind:      models.EventUserConnected,
			Timestamp: time.Now(),
			Name:      s.Name,
			Email:     s.Email,
		})
		r.persistHistoryLocked()
	}

	s.Send(models.Message{Type: models.MsgLoginSuccess, Data: map[string]string{"sessionId": s.ID}})
	r.sendSnapshotsLocked(s)
	r.broadcastSessionsLocked()
	r.broadcastHistoryLocked()
	r.mu.Unlock()

	if adopt {
		r.adoptConductorPlayback()
		if err := r.EnsureFallback(context.Background()); err != nil {
			log.Debug().Err(err).Msg("fallback playlist not loaded yet")
		}
	}
	return nil
}

// DetachTransport clears the session's handle when its connection closes.
// The session itself lives on until the heartbeat cleanup evicts it.
func (r *Room) DetachTransport(sessionID string, conn models.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if ok && s.Conn == conn {
		s.Conn = nil
	}
}

// Heartbeat refreshes the session's liveness clock.
func (r *Room) Heartbeat(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.LastHeartbeat = time.Now()
	}
}

// dedupByEmailLocked evicts any other session holding the same email. When
// the evicted seat was the conductor and the survivor can drive playback,
// the conductor role transfers.
func (r *Room) dedupByEmailLocked(keep *models.Session) {
	if keep.Email == "" {
		return
	}

	evicted := false
	for id, other := range r.sessions {
		if id == keep.ID || !other.SameEmail(keep.Email) {
			continue
		}

		wasMaster := r.masterID == id
		if other.Conn != nil {
			other.Conn.Close()
		}
		delete(r.sessions, id)
		evicted = true
		log.Info().Str("evicted", id).Str("email", keep.Email).Msg("duplicate session evicted on login")

		if wasMaster {
			r.masterID = ""
			if keep.HasSpotify() {
				r.masterID = keep.ID
				log.Info().Str("master", keep.ID).Msg("conductor role transferred to re-login")
			}
		}
	}

	if evicted {
		r.broadcastModeLocked()
		r.broadcastSessionsLocked()
	}
}

// assignConductorLocked picks the first Spotify-capable session when the room
// has no conductor. Returns true when a fresh assignment should adopt the
// conductor's live playback as the room's state.
func (r *Room) assignConductorLocked() bool {
	if r.masterID != "" {
		if s, ok := r.sessions[r.masterID]; ok && s.HasSpotify() {
			return false
		}
		r.masterID = ""
	}

	for _, s := range r.sessions {
		if s.HasSpotify() {
			r.masterID = s.ID
			log.Info().Str("master", s.ID).Str("email", s.Email).Msg("conductor assigned")
			r.broadcastModeLocked()
			return true
		}
	}
	return false
}

// conductorLocked returns the conductor session, or nil.
func (r *Room) conductorLocked() *models.Session {
	if r.masterID == "" {
		return nil
	}
	return r.sessions[r.masterID]
}

// conductorToken returns the conductor's access token outside any I/O.
func (r *Room) conductorToken() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.conductorLocked()
	if c == nil || !c.HasSpotify() {
		return "", false
	}
	return c.AccessToken, true
}

// adoptConductorPlayback reads the fresh conductor's live player and takes
// its track and play state as the room's own, so joining an already-playing
// conductor is observable immediately.
func (r *Room) adoptConductorPlayback() {
	token, ok := r.conductorToken()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestBudget)
	defer cancel()
	pb, err := r.provider.CurrentPlayback(ctx, token)
	if err != nil || pb == nil || pb.URI == "" {
		return
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), requestBudget)
	defer cancel2()
	track, err := r.provider.TrackInfo(ctx2, token, spotify.TrackID(pb.URI))
	if err != nil {
		log.Warn().Err(err).Msg("could not resolve conductor's current track")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return
	}
	r.current = track
	r.current.ProgressMs = pb.ProgressMs
	r.currentConsumed = true
	r.currentIsFallback = false
	r.lastPlayback = pb
	if pb.IsPlaying {
		r.mode = models.ModePlaying
	}
	log.Info().Str("uri", track.URI).Bool("playing", pb.IsPlaying).Msg("adopted conductor playback")
	r.broadcastTracksLocked()
	r.broadcastModeLocked()
}

// CleanupStale evicts sessions that have missed heartbeats for longer than
// the configured timeout. Run periodically by StartMaintenance.
func (r *Room) CleanupStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.cfg.HeartbeatTimeout)
	evicted := false

	for id, s := range r.sessions {
		if s.LastHeartbeat.After(cutoff) {
			continue
		}
		if s.Conn != nil {
			s.Conn.Close()
		}
		delete(r.sessions, id)
		evicted = true

		r.ledger.Append(&models.HistoryEvent{
			Kind:      models.EventUserDisconnected,
			Timestamp: time.Now(),
			Name:      s.Name,
			Email:     s.Email,
		})
		log.Info().Str("session", id).Str("email", s.Email).Msg("stale session evicted")

		if r.masterID == id {
			r.masterID = ""
		}
	}

	if evicted {
		r.assignConductorLocked()
		r.persistHistoryLocked()
		r.persistSessionsLocked()
		r.broadcastSessionsLocked()
		r.broadcastHistoryLocked()
		r.broadcastModeLocked()
	}
}

// StartMaintenance runs the stale-session sweep and the periodic credential
// refresh until ctx is done.
func (r *Room) StartMaintenance(ctx context.Context) {
	go func() {
		cleanup := time.NewTicker(cleanupInterval)
		refresh := time.NewTicker(refreshInterval)
		defer cleanup.Stop()
		defer refresh.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanup.C:
				r.CleanupStale()
			case <-refresh.C:
				r.RefreshAllCredentials(ctx)
			}
		}
	}()
}
