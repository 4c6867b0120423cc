package models

import "time"

// History event kinds.
const (
	EventTrackAdded       = "track_added"
	EventTrackPlay        = "track_play"
	EventTrackSkip        = "track_skip"
	EventFallbackPlay     = "fallback_play"
	EventJam              = "jam"
	EventUnjam            = "unjam"
	EventAirhorn          = "airhorn"
	EventMessage          = "message"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
)

// HistoryEvent is one append-only entry in the room's event ledger.
type HistoryEvent struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Track     *Track    `json:"track,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// PlayHistoryEntry records one completed play.
type PlayHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Track     *Track    `json:"track"`
	StartedBy string    `json:"startedBy,omitempty"`
}

// Playback is a snapshot of the conductor's live player, as reported by the
// currently-playing endpoint. URI is empty when Spotify hides the item
// (private session, local files); the loop treats that as observer-blind.
type Playback struct {
	URI        string `json:"uri"`
	ID         string `json:"id"`
	Type       string `json:"type"`
	ProgressMs int64  `json:"progressMs"`
	DurationMs int64  `json:"durationMs"`
	IsPlaying  bool   `json:"isPlaying"`
}
