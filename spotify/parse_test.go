package spotify

import "testing"

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		wantKind string
		wantID   string
		wantErr  bool
	}{
		{
			name:     "track url",
			input:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "track url with share query",
			input:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123def",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "track url with intl locale segment",
			input:    "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "locale url",
			input:    "https://open.spotify.com/de/track/4uLU6hMCjMI75M1A2tKUQC",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "playlist url",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			wantKind: KindPlaylist,
			wantID:   "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "track uri",
			input:    "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "playlist uri",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			wantKind: KindPlaylist,
			wantID:   "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "bare id is a track",
			input:    "4uLU6hMCjMI75M1A2tKUQC",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "album url recognised as album",
			input:    "https://open.spotify.com/album/1ATL5GLyefJaxhQzSPVrLX",
			wantKind: KindAlbum,
			wantID:   "1ATL5GLyefJaxhQzSPVrLX",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  spotify:track:4uLU6hMCjMI75M1A2tKUQC  ",
			wantKind: KindTrack,
			wantID:   "4uLU6hMCjMI75M1A2tKUQC",
		},
		{name: "empty input", input: "", wantErr: true},
		{name: "random text", input: "play something good", wantErr: true},
		{name: "wrong id length", input: "spotify:track:tooShort", wantErr: true},
		{name: "other host", input: "https://example.com/track/4uLU6hMCjMI75M1A2tKUQC", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			link, err := Parse(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", link)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if link.Kind != tc.wantKind {
				t.Errorf("kind: got %s, want %s", link.Kind, tc.wantKind)
			}
			if link.ID != tc.wantID {
				t.Errorf("id: got %s, want %s", link.ID, tc.wantID)
			}
			wantURI := "spotify:" + tc.wantKind + ":" + tc.wantID
			if link.URI != wantURI {
				t.Errorf("uri: got %s, want %s", link.URI, wantURI)
			}
		})
	}
}

func TestTrackID(t *testing.T) {
	if got := TrackID("spotify:track:4uLU6hMCjMI75M1A2tKUQC"); got != "4uLU6hMCjMI75M1A2tKUQC" {
		t.Errorf("got %q", got)
	}
	if got := TrackID("spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"); got != "" {
		t.Errorf("non-track uri should yield empty id, got %q", got)
	}
	if got := TrackID("garbage"); got != "" {
		t.Errorf("garbage should yield empty id, got %q", got)
	}
}
