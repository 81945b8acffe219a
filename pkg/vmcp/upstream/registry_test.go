package upstream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/upstream"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := upstream.NewRegistry()
	s := upstream.NewSession(vmcp.UpstreamServer{Name: "weather", Transport: vmcp.TransportHTTP, Endpoint: "http://weather.local"})
	r.Register(s)

	got, ok := r.Get("weather")
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_MustGet_Unknown(t *testing.T) {
	t.Parallel()

	r := upstream.NewRegistry()
	_, err := r.MustGet("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, vmcp.ErrUpstreamUnavailable)
}

func TestRegistry_All(t *testing.T) {
	t.Parallel()

	r := upstream.NewRegistry()
	r.Register(upstream.NewSession(vmcp.UpstreamServer{Name: "a"}))
	r.Register(upstream.NewSession(vmcp.UpstreamServer{Name: "b"}))

	all := r.All()
	assert.Len(t, all, 2)
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	r := upstream.NewRegistry()
	r.Register(upstream.NewSession(vmcp.UpstreamServer{Name: "a"}))

	require.NoError(t, r.Remove("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)

	// removing an unregistered name is a no-op, not an error
	require.NoError(t, r.Remove("a"))
}

func TestSession_InitialStateIsIdle(t *testing.T) {
	t.Parallel()

	s := upstream.NewSession(vmcp.UpstreamServer{Name: "x", Transport: vmcp.TransportHTTP, Endpoint: "http://x.local"})
	assert.Equal(t, vmcp.StateIdle, s.State())
}

func TestSession_OAuth2_AuthorizationURLTransitionsToAuthRequired(t *testing.T) {
	t.Parallel()

	s := upstream.NewSession(vmcp.UpstreamServer{
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

	url, err := s.AuthorizationURL("state-123")
	require.NoError(t, err)
	assert.Contains(t, url, "oauthy.local/authorize")
	assert.Equal(t, vmcp.StateAuthRequired, s.State())
}
