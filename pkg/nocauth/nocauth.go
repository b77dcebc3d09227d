// Package nocauth wraps an optional OAuth2 client-credentials token source
// for calls to the NOC endpoint. Client credentials is the right grant
// here: both the coordinator and the pupil call out to NOC unattended,
// with no user in the loop.
package nocauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the client-credentials parameters. A zero Config (empty
// ClientID) means NOC auth is disabled; callers send requests unauthenticated.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Enabled reports whether OAuth2 auth is configured.
func (c Config) Enabled() bool {
	return c.ClientID != ""
}

// TokenSource wraps an oauth2.TokenSource, refreshed automatically by the
// oauth2 package on expiry.
type TokenSource struct {
	src oauth2.TokenSource
}

// New builds a TokenSource from cfg. Call sites must check cfg.Enabled()
// first; New does not validate the config.
func New(ctx context.Context, cfg Config) *TokenSource {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &TokenSource{src: ccCfg.TokenSource(ctx)}
}

// SetAuthHeader attaches "Authorization: Bearer <token>" to req, fetching
// or refreshing the token as needed.
func (t *TokenSource) SetAuthHeader(req *http.Request) error {
	tok, err := t.src.Token()
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}
