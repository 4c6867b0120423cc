package models

import "time"

// FallbackEmail is the sentinel submitter for tracks sourced from the
// fallback playlist rather than a participant.
const FallbackEmail = "fallback@system"

// Track references one Spotify track queued in the room. The URI is the
// identity key: no two entries in the user queue share one.
type Track struct {
	URI            string         `json:"uri"`
	Name           string         `json:"name"`
	Artist         string         `json:"artist"`
	Album          string         `json:"album"`
	AlbumArtURL    string         `json:"albumArtUrl,omitempty"`
	SubmitterEmail string         `json:"submitterEmail,omitempty"`
	SubmitterName  string         `json:"submitterName,omitempty"`
	SubmittedAt    time.Time      `json:"submittedAt"`
	JamCounts      map[string]int `json:"jamCounts,omitempty"`
	DurationMs     int64          `json:"durationMs,omitempty"`
	ProgressMs     int64          `json:"progressMs,omitempty"`

	// PlaylistName carries the fallback playlist's name for fallback tracks.
	PlaylistName string `json:"spotifyName,omitempty"`

	// IsFallback tags display entries borrowed from the fallback queue.
	IsFallback bool `json:"isFallback,omitempty"`
}

// FromFallback reports whether the track was sourced from the fallback
// playlist rather than submitted by a participant.
func (t *Track) FromFallback() bool {
	return t.SubmitterEmail == FallbackEmail
}

// Jam increments the jam count for the given email. Returns the new count.
func (t *Track) Jam(email string) int {
	if t.JamCounts == nil {
		t.JamCounts = make(map[string]int)
	}
	t.JamCounts[email]++
	return t.JamCounts[email]
}

// Unjam removes the given email's jam, deleting the entry when it reaches
// zero so counts stay positive.
func (t *Track) Unjam(email string) {
	if t.JamCounts == nil {
		return
	}
	if t.JamCounts[email] <= 1 {
		delete(t.JamCounts, email)
		return
	}
	t.JamCounts[email]--
}

// TotalJams sums all jams on the track.
func (t *Track) TotalJams() int {
	n := 0
	for _, c := range t.JamCounts {
		n += c
	}
	return n
}

// Clone returns a deep copy so snapshots (play history, broadcasts) don't
// alias the live queue entry.
func (t *Track) Clone() *Track {
	cp := *t
	if t.JamCounts != nil {
		cp.JamCounts = make(map[string]int, len(t.JamCounts))
		for k, v := range t.JamCounts {
			cp.JamCounts[k] = v
		}
	}
	return &cp
}
