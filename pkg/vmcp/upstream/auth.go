// Package upstream implements Upstream Sessions: persistent, stateful
// connections to backend MCP servers, their thread-safe registry, and the
// authentication round trippers applied to outgoing requests.
package upstream

import (
	"fmt"
	"net/http"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// roundTripperFunc is a function adapter for http.RoundTripper, grounded on
// the teacher's client package pattern of the same name.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// authRoundTripper applies one upstream's AuthPolicy to every outgoing
// request. The policy is resolved once at session construction time so
// per-request dispatch never revalidates configuration.
type authRoundTripper struct {
	base   http.RoundTripper
	policy vmcp.AuthPolicy
	// tokenSource supplies a live bearer token for AuthOAuth2, refreshed
	// transparently by the oauth2 library as needed.
	tokenSource oauthTokenSource
	// onUnauthorized is called when a backend responds 401 to an
	// already-authenticated request: the credential this round tripper
	// attached no longer authorizes it (a revoked token, an expired
	// session on the backend side). nil when the session has no reactive
	// handling configured.
	onUnauthorized func()
}

// oauthTokenSource is satisfied by *oauth2.Token-backed sources; declared
// here to avoid an import cycle with oauth.go.
type oauthTokenSource interface {
	Token() (string, error)
}

func (a *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	switch a.policy.Kind {
	case vmcp.AuthNone:
		// no headers added

	case vmcp.AuthBearer:
		clone.Header.Set("Authorization", "Bearer "+a.policy.Token)

	case vmcp.AuthAPIKey:
		name := a.policy.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		clone.Header.Set(name, a.policy.Token)

	case vmcp.AuthBasic:
		clone.SetBasicAuth(a.policy.Username, a.policy.Password)

	case vmcp.AuthCustomHeader:
		for k, v := range a.policy.Headers {
			clone.Header.Set(k, v)
		}

	case vmcp.AuthOAuth2:
		if a.tokenSource == nil {
			return nil, fmt.Errorf("%w: oauth2 policy has no token source", vmcp.ErrAuthRequired)
		}
		tok, err := a.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", vmcp.ErrAuthRequired, err)
		}
		clone.Header.Set("Authorization", "Bearer "+tok)

	default:
		return nil, fmt.Errorf("unsupported auth kind %q", a.policy.Kind)
	}

	resp, err := a.base.RoundTrip(clone)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && a.onUnauthorized != nil {
		a.onUnauthorized()
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned 401", vmcp.ErrAuthRequired, req.URL.Host)
	}
	return resp, err
}

// newAuthenticatedClient builds an *http.Client whose transport applies
// policy to every request issued by the MCP SDK client. onUnauthorized, if
// non-nil, is invoked once per 401 response and the round trip then fails
// with ErrAuthRequired instead of returning the 401 to the MCP SDK client,
// which has no notion of authorization state to act on it.
func newAuthenticatedClient(policy vmcp.AuthPolicy, ts oauthTokenSource, base http.RoundTripper, onUnauthorized func()) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &authRoundTripper{base: base, policy: policy, tokenSource: ts, onUnauthorized: onUnauthorized},
	}
}
