package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slate-fm/maestro/models"
	"github.com/slate-fm/maestro/room"
	"github.com/slate-fm/maestro/spotify"
)

// ===== Mock Implementations =====

// stubProvider satisfies room.Provider with canned answers; the handlers
// under test only exercise track lookup and liked-songs pulls.
type stubProvider struct {
	tracks map[string]*models.Track
	liked  []*models.Track
}

func (p *stubProvider) TrackInfo(_ context.Context, _, id string) (*models.Track, error) {
	t, ok := p.tracks[id]
	if !ok {
		return nil, spotify.ErrNotFound
	}
	return t.Clone(), nil
}

func (p *stubProvider) PlaylistInfo(context.Context, string, string) (*spotify.Playlist, error) {
	return nil, spotify.ErrNotFound
}

func (p *stubProvider) PlaylistTracks(context.Context, string, string) ([]*models.Track, error) {
	return nil, spotify.ErrNotFound
}

func (p *stubProvider) Play(context.Context, string, []string, int64) error { return nil }
func (p *stubProvider) Pause(context.Context, string) error                 { return nil }

func (p *stubProvider) CurrentPlayback(context.Context, string) (*models.Playback, error) {
	return nil, nil
}

func (p *stubProvider) RandomLiked(_ context.Context, _ string, n int) ([]*models.Track, error) {
	if n > len(p.liked) {
		n = len(p.liked)
	}
	out := make([]*models.Track, n)
	for i := 0; i < n; i++ {
		out[i] = p.liked[i].Clone()
	}
	return out, nil
}

func (p *stubProvider) Refresh(context.Context, string) (*spotify.TokenResult, error) {
	return &spotify.TokenResult{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)}, nil
}

type nullConn struct{}

func (nullConn) Send(models.Message) bool { return true }
func (nullConn) Close()                   {}

// ===== Test Helpers =====

func newTestApp(t *testing.T, p *stubProvider) (*app, string) {
	t.Helper()
	rm := room.New(p, nil, room.Config{})

	id := rm.CreateEmptySession()
	if err := rm.CompleteSpotifyLogin(id, "Alice", "alice@x.com", "tok", "ref", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("completing login: %v", err)
	}
	if err := rm.AttachTransport(id, nullConn{}); err != nil {
		t.Fatalf("attaching: %v", err)
	}
	return &app{room: rm}, id
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ===== Handler Tests =====

func TestSubmitTrackEndpoint(t *testing.T) {
	p := &stubProvider{tracks: map[string]*models.Track{
		"4uLU6hMCjMI75M1A2tKUQC": {URI: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", Name: "Song", DurationMs: 200000},
	}}
	a, sessionID := newTestApp(t, p)
	h := a.routes(http.NotFoundHandler())

	rec := doJSON(t, h, http.MethodPost, "/submit-track",
		`{"sessionId":"`+sessionID+`","input":"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("expected success:true")
	}
}

func TestRandomLikedEndpoint(t *testing.T) {
	p := &stubProvider{liked: []*models.Track{
		{URI: "spotify:track:l1", Name: "Liked 1", DurationMs: 200000},
		{URI: "spotify:track:l2", Name: "Liked 2", DurationMs: 200000},
	}}
	a, sessionID := newTestApp(t, p)
	h := a.routes(http.NotFoundHandler())

	rec := doJSON(t, h, http.MethodPost, "/master-random-liked",
		`{"sessionId":"`+sessionID+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Added int `json:"added"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Added != 2 {
		t.Errorf("added: got %d, want 2", resp.Added)
	}
}

func TestAirhornsEndpoint(t *testing.T) {
	a, _ := newTestApp(t, &stubProvider{})
	h := a.routes(http.NotFoundHandler())

	rec := doJSON(t, h, http.MethodGet, "/airhorns", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var resp struct {
		Airhorns []string `json:"airhorns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Airhorns) != len(models.AirhornSounds) {
		t.Fatalf("airhorns: got %d sounds, want %d", len(resp.Airhorns), len(models.AirhornSounds))
	}
	if resp.Airhorns[0] != models.AirhornSounds[0] {
		t.Errorf("first sound: got %s, want %s", resp.Airhorns[0], models.AirhornSounds[0])
	}
}
