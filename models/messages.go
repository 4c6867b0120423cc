package models

// Outbound message kinds. Each kind has exactly one payload shape, built by
// the room's broadcast layer; payloads are the authoritative state.
const (
	MsgTracksList       = "tracks_list"
	MsgMode             = "mode"
	MsgSessionMode      = "session_mode"
	MsgSessionsList     = "sessions_list"
	MsgHistory          = "history"
	MsgPlayHistory      = "play_history"
	MsgPlayAirhorn      = "play_airhorn"
	MsgProminentMessage = "prominent_message"
	MsgPlaybackError    = "playback_error"
	MsgPlayTrack        = "play_track"
	MsgLoginSuccess     = "login_success"
	MsgLoginError       = "login_error"
	MsgPong             = "pong"
)

// Message is the envelope for every frame sent to a participant.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
