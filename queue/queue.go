// Package queue implements the room's two-tier track queue: the ordered
// user-submitted queue with round-robin fair insertion, and the shuffled
// fallback queue sourced from a playlist. The queue is a plain data
// structure; the room serialises access to it.
package queue

import (
	"errors"
	"math/rand"
	"time"

	"github.com/slate-fm/maestro/models"
)

// DisplayLimit is how many entries the rendered queue shows: all user tracks,
// padded with fallback tracks up to this many when there are fewer.
const DisplayLimit = 10

// ErrDuplicate is returned when a submission's URI is already queued.
var ErrDuplicate = errors.New("track already in queue")

// Queue holds the user-submitted and fallback tiers.
type Queue struct {
	user     []*models.Track
	fallback []*models.Track
}

func New() *Queue {
	return &Queue{}
}

// Len returns the number of user-submitted tracks.
func (q *Queue) Len() int { return len(q.user) }

// FallbackLen returns the number of fallback tracks.
func (q *Queue) FallbackLen() int { return len(q.fallback) }

// UserTracks returns the user tier for persistence and display. The slice is
// shared; callers must not mutate it outside the room's guard.
func (q *Queue) UserTracks() []*models.Track { return q.user }

// Restore replaces the user tier wholesale (startup load).
func (q *Queue) Restore(tracks []*models.Track) {
	q.user = tracks
}

// Add inserts a track into the user queue at its fair position. Submissions
// without a submitter email go to the end.
func (q *Queue) Add(t *models.Track) error {
	if q.FindUser(t.URI) != nil {
		return ErrDuplicate
	}

	// A track lives in at most one tier; a submission supersedes the same
	// track waiting in the fallback tier.
	q.RemoveFallback(t.URI)

	if t.SubmitterEmail == "" {
		q.user = append(q.user, t)
		return nil
	}

	idx := q.fairIndex(t.SubmitterEmail)
	q.user = append(q.user, nil)
	copy(q.user[idx+1:], q.user[idx:])
	q.user[idx] = t
	return nil
}

// fairIndex computes the round-robin insertion point for a new submission by
// email. A user's (k+1)th track lands after every other user's (k+1)th
// existing track but before their (k+2)th, and after all of the submitter's
// own tracks.
func (q *Queue) fairIndex(email string) int {
	userCount := 0
	lastUserIdx := -1
	for i, t := range q.user {
		if t.SubmitterEmail == email {
			userCount++
			lastUserIdx = i
		}
	}
	newRound := userCount + 1

	boundaryIdx := -1
	roundsSeen := make(map[string]int)
	for i, t := range q.user {
		roundsSeen[t.SubmitterEmail]++
		if roundsSeen[t.SubmitterEmail] <= newRound {
			boundaryIdx = i
		}
	}

	idx := boundaryIdx + 1
	if lastUserIdx+1 > idx {
		idx = lastUserIdx + 1
	}
	return idx
}

// Remove deletes a track from the user queue by URI and returns it, or nil.
func (q *Queue) Remove(uri string) *models.Track {
	for i, t := range q.user {
		if t.URI == uri {
			q.user = append(q.user[:i], q.user[i+1:]...)
			return t
		}
	}
	return nil
}

// RemoveFallback deletes a track from the fallback queue by URI.
func (q *Queue) RemoveFallback(uri string) *models.Track {
	for i, t := range q.fallback {
		if t.URI == uri {
			q.fallback = append(q.fallback[:i], q.fallback[i+1:]...)
			return t
		}
	}
	return nil
}

// DelayOne swaps a user-queue entry with its immediate successor. A no-op at
// the tail or for unknown URIs.
func (q *Queue) DelayOne(uri string) bool {
	for i, t := range q.user {
		if t.URI == uri {
			if i == len(q.user)-1 {
				return false
			}
			q.user[i], q.user[i+1] = q.user[i+1], q.user[i]
			return true
		}
	}
	return false
}

// FindUser returns the user-queue entry with the given URI, or nil.
func (q *Queue) FindUser(uri string) *models.Track {
	for _, t := range q.user {
		if t.URI == uri {
			return t
		}
	}
	return nil
}

// FindFallback returns the fallback entry with the given URI, or nil.
func (q *Queue) FindFallback(uri string) *models.Track {
	for _, t := range q.fallback {
		if t.URI == uri {
			return t
		}
	}
	return nil
}

// PeekNext nominates the next track without removing it: head of the user
// queue, else head of the fallback queue. Returns (nil, false) when both are
// empty. Two peeks with no mutation in between return the same head.
func (q *Queue) PeekNext() (*models.Track, bool) {
	if len(q.user) > 0 {
		return q.user[0], false
	}
	if len(q.fallback) > 0 {
		return q.fallback[0], true
	}
	return nil, false
}

// PeekFallback returns the fallback head without removing it, even when the
// user tier is non-empty.
func (q *Queue) PeekFallback() *models.Track {
	if len(q.fallback) == 0 {
		return nil
	}
	return q.fallback[0]
}

// ConsumeNext removes the head of the chosen tier. Called only after the
// provider confirms the nominated track is playing, so a failed play command
// never loses a submission.
func (q *Queue) ConsumeNext(isFallback bool) *models.Track {
	if isFallback {
		if len(q.fallback) == 0 {
			return nil
		}
		t := q.fallback[0]
		q.fallback = q.fallback[1:]
		return t
	}
	if len(q.user) == 0 {
		return nil
	}
	t := q.user[0]
	q.user = q.user[1:]
	return t
}

// SetFallback replaces the fallback tier with a Fisher-Yates shuffle of the
// playlist's tracks, stamping each with the fallback sentinel submitter and
// the playlist's name.
func (q *Queue) SetFallback(tracks []*models.Track, playlistName string) {
	shuffled := make([]*models.Track, len(tracks))
	copy(shuffled, tracks)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	for _, t := range shuffled {
		t.SubmitterEmail = models.FallbackEmail
		t.PlaylistName = playlistName
		t.SubmittedAt = time.Now()
	}
	q.fallback = shuffled
}

// Promote moves a fallback track into the user queue as if the jammer had
// submitted it, carrying one jam from them.
func (q *Queue) Promote(uri, jammerEmail, jammerName string) (*models.Track, error) {
	t := q.RemoveFallback(uri)
	if t == nil {
		return nil, errors.New("track not in fallback queue")
	}

	promoted := t.Clone()
	promoted.SubmitterEmail = jammerEmail
	promoted.SubmitterName = jammerName
	promoted.SubmittedAt = time.Now()
	promoted.IsFallback = false
	promoted.JamCounts = map[string]int{jammerEmail: 1}

	if err := q.Add(promoted); err != nil {
		// Put the fallback entry back rather than dropping the track.
		q.fallback = append([]*models.Track{t}, q.fallback...)
		return nil, err
	}
	return promoted, nil
}

// Display composes the client-facing queue: the user tier in full, then
// fallback tracks tagged isFallback up to DisplayLimit total when the user
// tier is short.
func (q *Queue) Display() []*models.Track {
	out := make([]*models.Track, 0, len(q.user))
	for _, t := range q.user {
		out = append(out, t)
	}

	for _, t := range q.fallback {
		if len(out) >= DisplayLimit {
			break
		}
		tagged := t.Clone()
		tagged.IsFallback = true
		out = append(out, tagged)
	}
	return out
}
