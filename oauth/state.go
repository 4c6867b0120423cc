package oauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const stateTTL = 15 * time.Minute

// StateSigner mints and verifies the OAuth `state` parameter as a short-lived
// ES256 token carrying the session id, so a forged callback can't attach
// tokens to someone else's seat. The signing key lives in the data directory
// and survives restarts.
type StateSigner struct {
	key jwk.Key
}

// NewStateSigner loads the signing key from dir, generating one on first run.
func NewStateSigner(dir string) (*StateSigner, error) {
	path := filepath.Join(dir, "state.jwk.json")

	if raw, err := os.ReadFile(path); err == nil {
		key, err := jwk.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing state key: %w", err)
		}
		return &StateSigner{key: key}, nil
	}

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	key, err := jwk.FromRaw(privKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, fmt.Sprintf("state-%d", time.Now().Unix())); err != nil {
		return nil, err
	}

	b, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling state key: %w", err)
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return nil, fmt.Errorf("writing state key: %w", err)
	}

	return &StateSigner{key: key}, nil
}

// Sign issues a state token for the given session id.
func (s *StateSigner) Sign(sessionID string) (string, error) {
	tok, err := jwt.NewBuilder().
		Claim("sid", sessionID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(stateTTL)).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, s.key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify checks the signature and expiry and returns the embedded session id.
func (s *StateSigner) Verify(state string) (string, error) {
	pub, err := s.key.PublicKey()
	if err != nil {
		return "", err
	}

	tok, err := jwt.Parse([]byte(state), jwt.WithKey(jwa.ES256, pub), jwt.WithValidate(true))
	if err != nil {
		return "", fmt.Errorf("invalid state token: %w", err)
	}

	sid, ok := tok.Get("sid")
	if !ok {
		return "", fmt.Errorf("state token missing session id")
	}
	sidStr, ok := sid.(string)
	if !ok || sidStr == "" {
		return "", fmt.Errorf("state token session id malformed")
	}
	return sidStr, nil
}
