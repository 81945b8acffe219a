// Package store defines the persistence ports the vmcp core consumes
// without owning: upstream server and vMCP object storage, an append-only
// usage log, and a blob store for custom-resource file bytes (spec §6). The
// core depends only on these interfaces; pkg/store/sqlite and
// pkg/store/inmemory are two interchangeable implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// UpstreamRecord is the persisted form of one configured upstream server,
// carrying the runtime status fields spec §6's upstream_server row adds on
// top of the static vmcp.UpstreamServer.
type UpstreamRecord struct {
	vmcp.UpstreamServer
	Status                 vmcp.SessionState
	LastError               string
	LastCapabilitiesUpdate time.Time
}

// UpstreamStore persists configured upstream servers and their last known
// connection status.
type UpstreamStore interface {
	Create(ctx context.Context, rec UpstreamRecord) error
	Get(ctx context.Context, id string) (UpstreamRecord, error)
	List(ctx context.Context) ([]UpstreamRecord, error)
	Update(ctx context.Context, rec UpstreamRecord) error
	Delete(ctx context.Context, id string) error
}

// VMCPRecord is the persisted form of one vMCP composition, matching spec
// §6's vmcp row: the domain object plus bookkeeping columns that don't
// belong on vmcp.VMCP itself.
type VMCPRecord struct {
	vmcp.VMCP
	CreatedAt time.Time
	UpdatedAt time.Time
	IsPublic  bool
	Tags      []string
}

// VMCPStore persists vMCP compositions.
type VMCPStore interface {
	Create(ctx context.Context, rec VMCPRecord) error
	Get(ctx context.Context, id string) (VMCPRecord, error)
	GetByName(ctx context.Context, name string) (VMCPRecord, error)
	List(ctx context.Context) ([]VMCPRecord, error)
	Update(ctx context.Context, rec VMCPRecord) error
	Delete(ctx context.Context, id string) error
}

// UsageLogEntry is one append-only row recording a single tool/resource/
// prompt dispatch (spec §6's usage_log row).
type UsageLogEntry struct {
	ID         int64
	VMCPID     string
	Method     string // tools/call, resources/read, prompts/get
	ToolName   string
	ServerName string // empty for custom tools/resources/prompts
	StartedAt  time.Time
	DurationMS int64
	Outcome    string // ok, error kind
}

// UsageLogStore appends and queries usage log rows. Never updated in place.
type UsageLogStore interface {
	Append(ctx context.Context, entry UsageLogEntry) error
	ListByVMCP(ctx context.Context, vmcpID string, limit int) ([]UsageLogEntry, error)
}

// Blob is one stored file referenced by a custom resource.
type Blob struct {
	ID       string
	Filename string
	MimeType string
	Bytes    []byte
}

// BlobStore implements the minimal put/get/delete/rename/list contract
// spec §6 requires for files backing custom resources.
type BlobStore interface {
	Put(ctx context.Context, b Blob) error
	Get(ctx context.Context, id string) (Blob, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, newFilename string) error
	List(ctx context.Context) ([]Blob, error)
}
