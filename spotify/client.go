package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/slate-fm/maestro/models"
)

const (
	defaultAPIURL   = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	requestTimeout = 5 * time.Second
	pageSize       = 50
)

// Behavioural error kinds. Callers branch with errors.Is; the wrapped error
// keeps the API's status and reason.
var (
	ErrNoActiveDevice = errors.New("spotify: no active device")
	ErrUnauthorized   = errors.New("spotify: unauthorized")
	ErrForbidden      = errors.New("spotify: forbidden")
	ErrNotFound       = errors.New("spotify: not found")
)

// Client is a typed adapter for the Spotify Web API. Tokens are passed per
// call since every session carries its own.
type Client struct {
	apiURL       string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewClient builds a client with a per-call timeout and a request budget
// comfortably under Spotify's rate limits.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		apiURL:       defaultAPIURL,
		tokenURL:     defaultTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: requestTimeout},
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (c *Client) do(ctx context.Context, token, method, path string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// apiError maps an error response onto the behavioural kinds. The body is
// consumed; callers must not read it afterwards.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var parsed apiErrorBody
	_ = json.Unmarshal(raw, &parsed)
	reason := parsed.Error.Reason
	message := parsed.Error.Message

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, message)
	case http.StatusNotFound:
		// The player endpoints report a missing device as a 404 with
		// reason NO_ACTIVE_DEVICE.
		if reason == "NO_ACTIVE_DEVICE" {
			return fmt.Errorf("%w: %s", ErrNoActiveDevice, message)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}
	return fmt.Errorf("spotify API error (%d): %s", resp.StatusCode, raw)
}

func trackFromAPI(t *apiTrack) *models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	track := &models.Track{
		URI:        t.URI,
		Name:       t.Name,
		Artist:     strings.Join(names, ", "),
		Album:      t.Album.Name,
		DurationMs: t.DurationMs,
	}
	if len(t.Album.Images) > 0 {
		track.AlbumArtURL = t.Album.Images[0].URL
	}
	return track
}

// TrackInfo fetches display metadata for one track.
func (c *Client) TrackInfo(ctx context.Context, token, id string) (*models.Track, error) {
	resp, err := c.do(ctx, token, http.MethodGet, "/tracks/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var t apiTrack
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding track: %w", err)
	}
	return trackFromAPI(&t), nil
}

// PlaylistInfo fetches a playlist's display metadata.
func (c *Client) PlaylistInfo(ctx context.Context, token, id string) (*Playlist, error) {
	resp, err := c.do(ctx, token, http.MethodGet, "/playlists/"+id+"?fields=id,name,description,owner(display_name),images,tracks(total)", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var p playlistResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding playlist: %w", err)
	}

	playlist := &Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Owner:       p.Owner.DisplayName,
		TrackCount:  p.Tracks.Total,
	}
	if len(p.Images) > 0 {
		playlist.ImageURL = p.Images[0].URL
	}
	return playlist, nil
}

// PlaylistTracks pages through a playlist until a short page signals the end.
// Local files have no URI and are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, token, id string) ([]*models.Track, error) {
	var tracks []*models.Track

	for offset := 0; ; offset += pageSize {
		path := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", id, pageSize, offset)
		resp, err := c.do(ctx, token, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, apiError(resp)
		}

		var page playlistTracksPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding playlist tracks: %w", err)
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.URI == "" || item.Track.IsLocal {
				continue
			}
			tracks = append(tracks, trackFromAPI(item.Track))
		}

		if len(page.Items) < pageSize {
			break
		}
	}

	return tracks, nil
}

// Play starts playback of the given URIs on the token's active device.
func (c *Client) Play(ctx context.Context, token string, uris []string, positionMs int64) error {
	payload := map[string]any{"uris": uris}
	if positionMs > 0 {
		payload["position_ms"] = positionMs
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, token, http.MethodPut, "/me/player/play", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// Pause pauses playback on the token's active device.
func (c *Client) Pause(ctx context.Context, token string) error {
	resp, err := c.do(ctx, token, http.MethodPut, "/me/player/pause", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// CurrentPlayback reads the token's live player. Returns (nil, nil) when
// nothing is playing (204). A playing item Spotify won't identify (private
// session, local file) comes back with an empty URI.
func (c *Client) CurrentPlayback(ctx context.Context, token string) (*models.Playback, error) {
	resp, err := c.do(ctx, token, http.MethodGet, "/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var pb playbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&pb); err != nil {
		return nil, fmt.Errorf("decoding playback: %w", err)
	}

	playback := &models.Playback{
		ProgressMs: pb.ProgressMs,
		IsPlaying:  pb.IsPlaying,
	}
	if pb.Item != nil {
		playback.URI = pb.Item.URI
		playback.ID = pb.Item.ID
		playback.Type = pb.Item.Type
		playback.DurationMs = pb.Item.DurationMs
	}
	return playback, nil
}

// RandomLiked picks up to n distinct tracks from the token's 50 most
// recently liked.
func (c *Client) RandomLiked(ctx context.Context, token string, n int) ([]*models.Track, error) {
	resp, err := c.do(ctx, token, http.MethodGet, fmt.Sprintf("/me/tracks?limit=%d", pageSize), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var page savedTracksPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding saved tracks: %w", err)
	}

	var pool []*models.Track
	for _, item := range page.Items {
		if item.Track == nil || item.Track.URI == "" {
			continue
		}
		pool = append(pool, trackFromAPI(item.Track))
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

// Refresh exchanges a refresh token for a fresh access token. Spotify may or
// may not rotate the refresh token; an empty RefreshToken in the result means
// the old one stays valid.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Msg("spotify token refresh rejected")
		return nil, fmt.Errorf("%w: token refresh failed (%d): %s", ErrUnauthorized, resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	return &TokenResult{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

type TokenResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Profile is the subset of the user profile the room needs for identity.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Me fetches the token owner's profile.
func (c *Client) Me(ctx context.Context, token string) (*Profile, error) {
	resp, err := c.do(ctx, token, http.MethodGet, "/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &p, nil
}
