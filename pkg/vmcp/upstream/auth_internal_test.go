package upstream

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// Internal (white-box) tests for the reactive mid-call 401 handling that
// registry_test.go's external tests can't reach, since authRoundTripper and
// Session.triggerAuthRequired are unexported.

func TestAuthRoundTripper_401TriggersOnUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var triggered bool
	rt := &authRoundTripper{
		base:           http.DefaultTransport,
		policy:         vmcp.AuthPolicy{Kind: vmcp.AuthBearer, Token: "stale-token"},
		onUnauthorized: func() { triggered = true },
	}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrAuthRequired)
	assert.True(t, triggered)
}

func TestAuthRoundTripper_200DoesNotTrigger(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	var triggered bool
	rt := &authRoundTripper{
		base:           http.DefaultTransport,
		policy:         vmcp.AuthPolicy{Kind: vmcp.AuthBearer, Token: "good-token"},
		onUnauthorized: func() { triggered = true },
	}
	client := &http.Client{Transport: rt}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.False(t, triggered)
}

func TestSession_TriggerAuthRequired_TransitionsToAuthRequired(t *testing.T) {
	t.Parallel()

	s := NewSession(vmcp.UpstreamServer{Name: "x", Transport: vmcp.TransportHTTP, Endpoint: "http://x.local"})
	s.state = vmcp.StateConnected

	s.triggerAuthRequired()

	assert.Equal(t, vmcp.StateAuthRequired, s.State())
	// no oauth2 policy configured: nothing to compute a fresh URL from.
	assert.Equal(t, "", s.PendingAuthorizationURL())
}

func TestSession_WrapCallError_AuthRequiredCarriesURL(t *testing.T) {
	t.Parallel()

	s := NewSession(vmcp.UpstreamServer{
		Name:      "oauthy",
		Transport: vmcp.TransportHTTP,
		Endpoint:  "http://oauthy.local",
		Auth: vmcp.AuthPolicy{
			Kind: vmcp.AuthOAuth2,
			OAuth: &vmcp.OAuthConfig{
				ClientID:    "client",
				AuthURL:     "http://oauthy.local/authorize",
				TokenURL:    "http://oauthy.local/token",
				RedirectURL: "http://vmcpd.local/callback",
			},
		},
	})

	err := s.wrapCallError(vmcp.ErrAuthRequired, "call tool search")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrAuthRequired)
	assert.Equal(t, vmcp.StateAuthRequired, s.State())

	var authErr *vmcp.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.URL, "oauthy.local/authorize")
}
