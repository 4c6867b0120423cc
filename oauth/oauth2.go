package oauth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

// Service wraps the authorization-code flow against Spotify's accounts
// service. The `state` parameter carries a signed session id so the callback
// can find the seat that initiated the login.
type Service struct {
	config oauth2.Config
	states *StateSigner
}

// NewService creates a Service for the configured Spotify app.
func NewService(clientID, clientSecret, redirectURI string, scopes []string, states *StateSigner) *Service {
	return &Service{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint:     spotify.Endpoint,
		},
		states: states,
	}
}

// AuthURL builds the authorization redirect for the given session.
func (o *Service) AuthURL(sessionID string) (string, error) {
	state, err := o.states.Sign(sessionID)
	if err != nil {
		return "", err
	}
	return o.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "false")), nil
}

// SessionFromState verifies the state parameter and returns the session id
// embedded in it.
func (o *Service) SessionFromState(state string) (string, error) {
	return o.states.Verify(state)
}

// Exchange trades an authorization code for tokens.
func (o *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return o.config.Exchange(ctx, code)
}
