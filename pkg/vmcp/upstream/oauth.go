package upstream

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// pkceOAuthSource implements oauthTokenSource over golang.org/x/oauth2,
// performing the authorization-code+PKCE exchange once and caching the
// resulting *oauth2.Token behind oauth2.ReuseTokenSource so subsequent
// calls to Token() refresh transparently.
type pkceOAuthSource struct {
	mu     sync.Mutex
	config *oauth2.Config
	src    oauth2.TokenSource
	// awaitingAuthorization is set once the authorization URL has been
	// surfaced to the caller; the session transitions to StateAuthRequired
	// until ExchangeCode supplies the authorization code.
	awaitingAuthorization bool
	pendingVerifier       string
}

// newPKCEOAuthSource builds an unauthenticated source from an upstream's
// OAuthConfig. Call AuthorizationURL to obtain the URL to present to the
// end user, then ExchangeCode once the redirect delivers the code.
func newPKCEOAuthSource(cfg *vmcp.OAuthConfig) *pkceOAuthSource {
	return &pkceOAuthSource{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

// AuthorizationURL generates a PKCE code verifier/challenge pair and
// returns the URL the end user must visit to authorize the upstream.
func (p *pkceOAuthSource) AuthorizationURL(state string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	p.pendingVerifier = verifier
	p.awaitingAuthorization = true

	url := p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return url, nil
}

// ExchangeCode completes the PKCE flow, trading the authorization code for
// a token and wiring a ReuseTokenSource for future refreshes.
func (p *pkceOAuthSource) ExchangeCode(ctx context.Context, code string) error {
	p.mu.Lock()
	verifier := p.pendingVerifier
	p.mu.Unlock()

	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("oauth2 code exchange failed: %w", err)
	}

	p.mu.Lock()
	p.src = oauth2.ReuseTokenSource(tok, p.config.TokenSource(ctx, tok))
	p.awaitingAuthorization = false
	p.mu.Unlock()
	return nil
}

// Token returns the current access token, refreshing it first if expired.
// Returns ErrAuthRequired when no authorization has been completed yet.
func (p *pkceOAuthSource) Token() (string, error) {
	p.mu.Lock()
	src := p.src
	awaiting := p.awaitingAuthorization
	p.mu.Unlock()

	if src == nil {
		if awaiting {
			return "", fmt.Errorf("%w: authorization pending", vmcp.ErrAuthRequired)
		}
		return "", fmt.Errorf("%w: authorization not started", vmcp.ErrAuthRequired)
	}

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: token refresh failed: %v", vmcp.ErrAuthRequired, err)
	}
	return tok.AccessToken, nil
}

// AwaitingAuthorization reports whether AuthorizationURL has been called
// but ExchangeCode has not yet completed.
func (p *pkceOAuthSource) AwaitingAuthorization() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaitingAuthorization
}

func generateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
