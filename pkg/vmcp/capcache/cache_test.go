package capcache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
	"github.com/vmcpio/vmcpd/pkg/vmcp/capcache"
)

type fakeSource struct {
	snap *vmcp.CapabilitySnapshot
	err  error
}

func (f *fakeSource) ListCapabilities(context.Context) (*vmcp.CapabilitySnapshot, error) {
	return f.snap, f.err
}

func TestCache_GetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	c := capcache.New()
	assert.Nil(t, c.Get("nope"))
}

func TestCache_StoreThenGet(t *testing.T) {
	t.Parallel()

	c := capcache.New()
	snap := &vmcp.CapabilitySnapshot{Tools: []vmcp.ToolDescriptor{{Name: "x"}}, DiscoveredAt: time.Now()}
	c.Store("weather", snap)

	got := c.Get("weather")
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Tools[0].Name)
}

func TestCache_RefreshAll_SkipsFailingSources(t *testing.T) {
	t.Parallel()

	c := capcache.New()
	ok := &fakeSource{snap: &vmcp.CapabilitySnapshot{Tools: []vmcp.ToolDescriptor{{Name: "good"}}}}
	bad := &fakeSource{err: errors.New("connection refused")}

	err := c.RefreshAll(context.Background(), map[string]capcache.Source{
		"ok":  ok,
		"bad": bad,
	})
	require.NoError(t, err)

	assert.Equal(t, "good", c.Get("ok").Tools[0].Name)
	assert.Nil(t, c.Get("bad"))
}

func TestCache_MarkStale(t *testing.T) {
	t.Parallel()

	c := capcache.New()
	c.Store("svc", &vmcp.CapabilitySnapshot{Tools: []vmcp.ToolDescriptor{{Name: "a"}}})
	c.MarkStale("svc")

	got := c.Get("svc")
	require.NotNil(t, got)
	assert.True(t, got.Stale)
	assert.Equal(t, "a", got.Tools[0].Name)
}

func TestCache_MarkStale_NoPriorSnapshotIsNoop(t *testing.T) {
	t.Parallel()

	c := capcache.New()
	c.MarkStale("never-stored")
	assert.Nil(t, c.Get("never-stored"))
}
