package models

import (
	"strings"
	"time"
)

// Global playback modes.
const (
	ModePlaying = "playing"
	ModePaused  = "paused"
)

// Per-session follower modes.
const (
	FollowModeFollow = "follow"
	FollowModePaused = "paused"
)

// Transport is the write side of a participant's bidirectional connection.
// Only the transport edge writes to the underlying socket; Send reports
// whether the message was accepted.
type Transport interface {
	Send(msg Message) bool
	Close()
}

// Session is one participant's seat in the room. A session is either
// Spotify-authenticated (tokens populated after the OAuth callback) or
// listener-only (name + email, no tokens).
type Session struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	AccessToken   string    `json:"accessToken,omitempty"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
	TokenExpiry   time.Time `json:"tokenExpiry,omitempty"`
	FollowMode    string    `json:"followMode"`
	LastHeartbeat time.Time `json:"-"`

	// Conn is nil while the participant has no open connection. Not
	// persisted; the cleanup task, not transport close, evicts sessions.
	Conn Transport `json:"-"`
}

// HasSpotify reports whether the session carries provider credentials and can
// therefore drive or mirror playback.
func (s *Session) HasSpotify() bool {
	return s.AccessToken != ""
}

// LoggedIn reports whether the session carries a complete identity, either
// Spotify-authenticated or listener-only.
func (s *Session) LoggedIn() bool {
	return s.HasSpotify() || (s.Name != "" && s.Email != "")
}

// SameEmail compares emails case-insensitively.
func (s *Session) SameEmail(email string) bool {
	return s.Email != "" && strings.EqualFold(s.Email, email)
}

// Send delivers a message over the session's transport if one is attached.
func (s *Session) Send(msg Message) bool {
	if s.Conn == nil {
		return false
	}
	return s.Conn.Send(msg)
}
