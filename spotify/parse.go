package spotify

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Entity kinds a Spotify reference can point at. Only tracks and playlists
// are admissible for the queue; the rest exist so rejections can name what
// the user actually pasted.
const (
	KindTrack    = "track"
	KindPlaylist = "playlist"
	KindAlbum    = "album"
	KindArtist   = "artist"
	KindEpisode  = "episode"
	KindShow     = "show"
)

// Link is a parsed Spotify reference.
type Link struct {
	Kind string
	ID   string
	URI  string
}

var (
	// open.spotify.com/track/<id>, with optional locale segment and query.
	urlExpr = regexp2.MustCompile(`^https?://open\.spotify\.com/(?:(?:[a-z]{2}(?:-[A-Z]{2})?|intl-[a-z]{2,4})/)?(track|playlist|album|artist|episode|show)/([0-9A-Za-z]{22})(?:[?#].*)?$`, 0)

	// spotify:track:<id>
	uriExpr = regexp2.MustCompile(`^spotify:(track|playlist|album|artist|episode|show):([0-9A-Za-z]{22})$`, 0)

	// A bare 22-character base62 id is taken to be a track.
	idExpr = regexp2.MustCompile(`^[0-9A-Za-z]{22}$`, 0)
)

// Parse accepts a Spotify URL, URI, or bare track id and resolves it to a
// typed Link. Unparseable input is an error, never a guess.
func Parse(input string) (*Link, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty input")
	}

	for _, expr := range []*regexp2.Regexp{urlExpr, uriExpr} {
		m, err := expr.FindStringMatch(input)
		if err != nil || m == nil {
			continue
		}
		kind := m.GroupByNumber(1).String()
		id := m.GroupByNumber(2).String()
		return &Link{Kind: kind, ID: id, URI: "spotify:" + kind + ":" + id}, nil
	}

	if ok, _ := idExpr.MatchString(input); ok {
		return &Link{Kind: KindTrack, ID: input, URI: "spotify:track:" + input}, nil
	}

	return nil, fmt.Errorf("not a recognisable spotify link: %q", input)
}

// TrackID extracts the id from a canonical track URI. Returns "" for
// anything that is not a track URI.
func TrackID(uri string) string {
	const prefix = "spotify:track:"
	if strings.HasPrefix(uri, prefix) {
		return uri[len(prefix):]
	}
	return ""
}
