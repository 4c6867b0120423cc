package spotify

// Response shapes for the subset of the Spotify Web API the room touches.

type apiArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type apiImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiAlbum struct {
	Name   string     `json:"name"`
	Images []apiImage `json:"images"`
}

type apiTrack struct {
	URI        string      `json:"uri"`
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Artists    []apiArtist `json:"artists"`
	Album      apiAlbum    `json:"album"`
	DurationMs int64       `json:"duration_ms"`
	IsLocal    bool        `json:"is_local"`
	Type       string      `json:"type"`
}

type playbackResponse struct {
	Item       *apiTrack `json:"item"`
	ProgressMs int64     `json:"progress_ms"`
	IsPlaying  bool      `json:"is_playing"`
}

type playlistResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Images []apiImage `json:"images"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type playlistTracksPage struct {
	Items []struct {
		Track *apiTrack `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

type savedTracksPage struct {
	Items []struct {
		Track *apiTrack `json:"track"`
	} `json:"items"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type apiErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// Playlist describes the fallback playlist for display.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	TrackCount  int    `json:"trackCount"`
	ImageURL    string `json:"imageUrl,omitempty"`
}
