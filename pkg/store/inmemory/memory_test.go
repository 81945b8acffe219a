package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmcpio/vmcpd/pkg/store"
	"github.com/vmcpio/vmcpd/pkg/store/inmemory"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

func TestUpstreamStore_CreateGetUpdateDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmemory.New().Upstreams()

	rec := store.UpstreamRecord{UpstreamServer: vmcp.UpstreamServer{ID: "srv1", Name: "weather"}}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)

	rec.Status = vmcp.StateConnected
	require.NoError(t, s.Update(ctx, rec))
	got, err = s.Get(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, vmcp.StateConnected, got.Status)

	require.NoError(t, s.Delete(ctx, "srv1"))
	_, err = s.Get(ctx, "srv1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVMCPStore_GetByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmemory.New().VMCPs()

	require.NoError(t, s.Create(ctx, store.VMCPRecord{VMCP: vmcp.VMCP{ID: "v1", Name: "main"}}))

	got, err := s.GetByName(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.ID)

	_, err = s.GetByName(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsageLogStore_ListByVMCPReturnsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmemory.New().UsageLog()

	base := time.Now()
	require.NoError(t, s.Append(ctx, store.UsageLogEntry{VMCPID: "v1", ToolName: "a", StartedAt: base}))
	require.NoError(t, s.Append(ctx, store.UsageLogEntry{VMCPID: "v1", ToolName: "b", StartedAt: base.Add(time.Second)}))
	require.NoError(t, s.Append(ctx, store.UsageLogEntry{VMCPID: "v2", ToolName: "c", StartedAt: base}))

	entries, err := s.ListByVMCP(ctx, "v1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ToolName)
	assert.Equal(t, "a", entries[1].ToolName)
}

func TestUsageLogStore_ListByVMCPRespectsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmemory.New().UsageLog()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, store.UsageLogEntry{VMCPID: "v1"}))
	}
	entries, err := s.ListByVMCP(ctx, "v1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBlobStore_PutGetRenameDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := inmemory.New().Blobs()

	require.NoError(t, s.Put(ctx, store.Blob{ID: "b1", Filename: "readme.txt", Bytes: []byte("hello")}))

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Bytes)

	require.NoError(t, s.Rename(ctx, "b1", "renamed.txt"))
	got, err = s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "renamed.txt", got.Filename)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "b1"))
	_, err = s.Get(ctx, "b1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
