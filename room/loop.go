package room

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/spotify"
)

// playCommand is one Spotify play/pause to issue after the mutation section
// releases the lock.
type playCommand struct {
	sessionID  string
	token      string
	uri        string
	positionMs int64
	pause      bool
}

// StartLoop runs the reconciliation ticker until ctx is done. The ticker
// always fires; Tick itself is a no-op unless the room is playing, which is
// what makes "stop/restart the loop" on mode and conductor changes trivial.
func (r *Room) StartLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick(ctx)
			}
		}
	}()
}

// Tick performs one reconciliation pass: poll the conductor's real playback,
// then reconcile the room against it. Overlapping ticks are prevented by the
// ticking guard; a slow poll cannot stack a second one.
func (r *Room) Tick(ctx context.Context) {
	r.mu.Lock()
	if r.ticking || r.mode != models.ModePlaying {
		r.mu.Unlock()
		return
	}
	c := r.conductorLocked()
	if c == nil || !c.HasSpotify() {
		r.mu.Unlock()
		return
	}
	r.ticking = true
	token := c.AccessToken
	masterID := r.masterID
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.ticking = false
		r.mu.Unlock()
	}()

	cctx, cancel := context.WithTimeout(ctx, requestBudget)
	pb, err := r.provider.CurrentPlayback(cctx, token)
	cancel()
	if err != nil {
		if errors.Is(err, spotify.ErrUnauthorized) {
			r.refreshSessionCredentials(ctx, masterID)
		} else {
			// Transient; the next tick retries.
			log.Debug().Err(err).Msg("playback poll failed")
		}
		return
	}

	if r.cfg.Debug {
		if pb != nil {
			log.Debug().Str("uri", pb.URI).Int64("progress", pb.ProgressMs).Bool("playing", pb.IsPlaying).Msg("poll")
		} else {
			log.Debug().Msg("poll: nothing playing")
		}
	}

	r.reconcile(ctx, pb)
}

// reconcile runs the tick's state machine under the lock and executes the
// resulting Spotify commands after releasing it.
func (r *Room) reconcile(ctx context.Context, pb *models.Playback) {
	if pb == nil {
		pb = &models.Playback{}
	}

	r.mu.Lock()
	cmds := r.reconcileLocked(pb)
	r.mu.Unlock()

	r.executeCommands(ctx, cmds)
}

func (r *Room) reconcileLocked(pb *models.Playback) []playCommand {
	prev := r.lastPlayback
	r.lastPlayback = pb
	now := time.Now()
	inGrace := now.Sub(r.lastChange) < graceWindow || now.Sub(r.lastSkip) < graceWindow

	// Playback-failure watch takes precedence: while a nomination is in
	// flight nothing else is interpreted.
	if r.expectedURI != "" {
		switch {
		case pb.URI == r.expectedURI && pb.IsPlaying:
			r.confirmNominationLocked()
		case now.After(r.expectedDeadline):
			return r.failNominationLocked()
		}
		return nil
	}

	// Spotify won't say what's playing (private session, local files):
	// observer blind, neither advance nor correct.
	if pb.URI == "" && pb.IsPlaying {
		return nil
	}

	// A track at or past 100% is ended, never "paused at the end".
	atEnd := pb.DurationMs > 0 && pb.ProgressMs >= pb.DurationMs

	ended := atEnd
	if prev != nil && prev.URI != "" && prev.DurationMs > 0 && prev.ProgressMs > prev.DurationMs*9/10 {
		if pb.URI == prev.URI && pb.ProgressMs == 0 {
			ended = true
		}
		if pb.URI != prev.URI {
			ended = true
		}
	}

	if ended {
		return r.advanceLocked(pb)
	}

	// Drift: the conductor's player is on a different track than intended.
	if r.current != nil && pb.URI != "" && pb.URI != r.current.URI && !inGrace {
		if t := r.queue.FindUser(pb.URI); t != nil && pb.IsPlaying {
			return r.naturalAdvanceLocked(t)
		}
		// Re-assert the intended track on the conductor.
		if c := r.conductorLocked(); c != nil {
			r.lastChange = now
			return []playCommand{{sessionID: c.ID, token: c.AccessToken, uri: r.current.URI}}
		}
		return nil
	}

	// Observed play/pause transitions outside the grace window are user
	// intent.
	if prev != nil {
		if prev.IsPlaying && !pb.IsPlaying && !inGrace && !atEnd {
			r.mode = models.ModePaused
			log.Info().Msg("conductor paused, room paused")
			r.broadcastModeLocked()
			return nil
		}
		if !prev.IsPlaying && pb.IsPlaying && r.mode != models.ModePlaying {
			r.mode = models.ModePlaying
			r.broadcastModeLocked()
		}
	}

	return nil
}

// confirmNominationLocked fires when the provider first reports the expected
// URI as playing: only now is the nominated track consumed from its queue
// tier, so a failed play command never loses a submission.
func (r *Room) confirmNominationLocked() {
	r.expectedURI = ""

	if !r.currentConsumed {
		r.queue.ConsumeNext(r.expectedIsFallback)
		r.currentConsumed = true
		r.persistQueueLocked()
	}

	kind := models.EventTrackPlay
	if r.currentIsFallback {
		kind = models.EventFallbackPlay
	}

	// A manual skip already recorded the transition; don't double up.
	suppress := kind == models.EventTrackPlay && time.Since(r.lastSkip) < graceWindow
	if !suppress && r.current != nil {
		r.ledger.Append(&models.HistoryEvent{
			Kind:      kind,
			Timestamp: time.Now(),
			Name:      r.current.SubmitterName,
			Email:     r.current.SubmitterEmail,
			Track:     r.current.Clone(),
		})
		r.persistHistoryLocked()
		r.broadcastHistoryLocked()
	}

	r.broadcastTracksLocked()
	r.broadcastModeLocked()
}

// failNominationLocked fires when the expected URI never showed up playing
// within the window: notify everyone, drop the current pointer (the track is
// still at its queue head), and try the nomination again.
func (r *Room) failNominationLocked() []playCommand {
	failed := r.expectedURI
	r.expectedURI = ""
	r.current = nil
	r.currentConsumed = false
	log.Warn().Str("uri", failed).Msg("nominated track never started playing")

	r.broadcastLocked(models.Message{
		Type: models.MsgPlaybackError,
		Data: noticePayload{Message: "Playback failed to start. Is your Spotify player active?"},
	})

	next, isFallback := r.queue.PeekNext()
	if next == nil {
		r.mode = models.ModePaused
		r.broadcastModeLocked()
		return nil
	}
	return r.setAndStartLocked(next, isFallback)
}

// advanceLocked handles a detected track end: record the outgoing play, then
// nominate whatever peeks next, or pause the room when both tiers are empty.
func (r *Room) advanceLocked(pb *models.Playback) []playCommand {
	if r.current != nil {
		r.ledger.RecordPlay(r.current, r.current.SubmitterName)
		r.broadcastPlayHistoryLocked()
	}

	next, isFallback := r.queue.PeekNext()
	if next == nil {
		r.current = nil
		r.mode = models.ModePaused
		log.Info().Msg("queue exhausted, room paused")
		r.broadcastTracksLocked()
		r.broadcastModeLocked()
		return nil
	}

	// The conductor's player may have already rolled onto the very track
	// we would nominate; adopt it instead of re-commanding it.
	if pb.URI == next.URI && pb.IsPlaying {
		r.queue.ConsumeNext(isFallback)
		r.current = next
		r.currentIsFallback = isFallback
		r.currentConsumed = true
		r.persistQueueLocked()
		r.appendPlayEventLocked(next, isFallback)
		r.broadcastTracksLocked()
		r.broadcastModeLocked()
		return r.followerCommandsLocked(next.URI)
	}

	return r.setAndStartLocked(next, isFallback)
}

// naturalAdvanceLocked handles the conductor skipping ahead to a track that
// sits in the user queue: splice it out and make it current.
func (r *Room) naturalAdvanceLocked(t *models.Track) []playCommand {
	if r.current != nil {
		r.ledger.RecordPlay(r.current, r.current.SubmitterName)
		r.broadcastPlayHistoryLocked()
	}

	r.queue.Remove(t.URI)
	r.current = t
	r.currentIsFallback = false
	r.currentConsumed = true
	r.persistQueueLocked()

	if time.Since(r.lastSkip) >= graceWindow {
		r.appendPlayEventLocked(t, false)
	}

	log.Info().Str("uri", t.URI).Msg("conductor advanced naturally to a queued track")
	r.broadcastTracksLocked()
	r.broadcastModeLocked()
	return r.followerCommandsLocked(t.URI)
}

func (r *Room) appendPlayEventLocked(t *models.Track, isFallback bool) {
	kind := models.EventTrackPlay
	if isFallback {
		kind = models.EventFallbackPlay
	}
	r.ledger.Append(&models.HistoryEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		Name:      t.SubmitterName,
		Email:     t.SubmitterEmail,
		Track:     t.Clone(),
	})
	r.persistHistoryLocked()
	r.broadcastHistoryLocked()
}

// setAndStartLocked nominates a track: it becomes current, the failure watch
// arms, and a play command is produced for the conductor and every follower.
// The track is NOT consumed from its queue tier until the provider confirms.
func (r *Room) setAndStartLocked(t *models.Track, isFallback bool) []playCommand {
	now := time.Now()
	r.current = t
	r.currentIsFallback = isFallback
	r.currentConsumed = false
	r.expectedURI = t.URI
	r.expectedDeadline = now.Add(failureWindow)
	r.expectedIsFallback = isFallback
	r.lastChange = now
	r.mode = models.ModePlaying

	r.broadcastTracksLocked()
	r.broadcastModeLocked()
	return r.playCommandsLocked(t.URI)
}

// playCommandsLocked targets the conductor plus every follower. Followers
// also get a play_track frame so their client knows what is being pushed to
// their player.
func (r *Room) playCommandsLocked(uri string) []playCommand {
	var cmds []playCommand
	for _, s := range r.sessions {
		if !s.HasSpotify() {
			continue
		}
		if s.ID == r.masterID || s.FollowMode == models.FollowModeFollow {
			cmds = append(cmds, playCommand{sessionID: s.ID, token: s.AccessToken, uri: uri})
			if s.ID != r.masterID {
				s.Send(models.Message{Type: models.MsgPlayTrack, Data: playTrackPayload{URI: uri}})
			}
		}
	}
	return cmds
}

// followerCommandsLocked targets followers only; used when the conductor's
// player is already on the track.
func (r *Room) followerCommandsLocked(uri string) []playCommand {
	var cmds []playCommand
	for _, s := range r.sessions {
		if !s.HasSpotify() || s.ID == r.masterID || s.FollowMode != models.FollowModeFollow {
			continue
		}
		cmds = append(cmds, playCommand{sessionID: s.ID, token: s.AccessToken, uri: uri})
		s.Send(models.Message{Type: models.MsgPlayTrack, Data: playTrackPayload{URI: uri}})
	}
	return cmds
}

// pauseCommandsLocked targets the conductor plus every follower.
func (r *Room) pauseCommandsLocked() []playCommand {
	var cmds []playCommand
	for _, s := range r.sessions {
		if !s.HasSpotify() {
			continue
		}
		if s.ID == r.masterID || s.FollowMode == models.FollowModeFollow {
			cmds = append(cmds, playCommand{sessionID: s.ID, token: s.AccessToken, pause: true})
		}
	}
	return cmds
}

// executeCommands issues the collected play/pause calls in parallel. A
// failure on one session never affects another: no-device errors turn into a
// targeted activation notice, auth errors trigger a refresh, the rest are
// logged and retried naturally by later ticks.
func (r *Room) executeCommands(ctx context.Context, cmds []playCommand) {
	if len(cmds) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, cmd := range cmds {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, requestBudget)
			defer cancel()

			var err error
			if cmd.pause {
				err = r.provider.Pause(cctx, cmd.token)
			} else {
				err = r.provider.Play(cctx, cmd.token, []string{cmd.uri}, cmd.positionMs)
			}

			switch {
			case err == nil:
			case errors.Is(err, spotify.ErrNoActiveDevice):
				r.NotifySession(cmd.sessionID, "No active Spotify player found. Open Spotify and start playing anything, then try again.")
			case errors.Is(err, spotify.ErrUnauthorized):
				r.refreshSessionCredentials(ctx, cmd.sessionID)
			default:
				log.Warn().Err(err).Str("session", cmd.sessionID).Msg("player command failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
