// Package inmemory implements pkg/store's ports with plain in-process maps,
// for tests and for the CLI's ephemeral mode (no store_path configured).
package inmemory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vmcpio/vmcpd/pkg/store"
)

// upstreamStore implements store.UpstreamStore over a guarded map.
type upstreamStore struct {
	mu   sync.RWMutex
	recs map[string]store.UpstreamRecord
}

func newUpstreamStore() *upstreamStore {
	return &upstreamStore{recs: make(map[string]store.UpstreamRecord)}
}

var _ store.UpstreamStore = (*upstreamStore)(nil)

func (s *upstreamStore) Create(_ context.Context, rec store.UpstreamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *upstreamStore) Get(_ context.Context, id string) (store.UpstreamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.UpstreamRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *upstreamStore) List(context.Context) ([]store.UpstreamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.UpstreamRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *upstreamStore) Update(ctx context.Context, rec store.UpstreamRecord) error {
	return s.Create(ctx, rec)
}

func (s *upstreamStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

// vmcpStore implements store.VMCPStore over a guarded map.
type vmcpStore struct {
	mu   sync.RWMutex
	recs map[string]store.VMCPRecord
}

func newVMCPStore() *vmcpStore {
	return &vmcpStore{recs: make(map[string]store.VMCPRecord)}
}

var _ store.VMCPStore = (*vmcpStore)(nil)

func (s *vmcpStore) Create(_ context.Context, rec store.VMCPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *vmcpStore) Get(_ context.Context, id string) (store.VMCPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.VMCPRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *vmcpStore) GetByName(_ context.Context, name string) (store.VMCPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.recs {
		if rec.Name == name {
			return rec, nil
		}
	}
	return store.VMCPRecord{}, store.ErrNotFound
}

func (s *vmcpStore) List(context.Context) ([]store.VMCPRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.VMCPRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *vmcpStore) Update(ctx context.Context, rec store.VMCPRecord) error {
	return s.Create(ctx, rec)
}

func (s *vmcpStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

// usageLogStore implements store.UsageLogStore over a guarded, append-only
// slice.
type usageLogStore struct {
	mu      sync.RWMutex
	entries []store.UsageLogEntry
	nextID  atomic.Int64
}

func newUsageLogStore() *usageLogStore {
	return &usageLogStore{}
}

var _ store.UsageLogStore = (*usageLogStore)(nil)

func (s *usageLogStore) Append(_ context.Context, entry store.UsageLogEntry) error {
	entry.ID = s.nextID.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *usageLogStore) ListByVMCP(_ context.Context, vmcpID string, limit int) ([]store.UsageLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.UsageLogEntry
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.entries[i].VMCPID == vmcpID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// blobStore implements store.BlobStore over a guarded map.
type blobStore struct {
	mu    sync.RWMutex
	blobs map[string]store.Blob
}

func newBlobStore() *blobStore {
	return &blobStore{blobs: make(map[string]store.Blob)}
}

var _ store.BlobStore = (*blobStore)(nil)

func (s *blobStore) Put(_ context.Context, b store.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[b.ID] = b
	return nil
}

func (s *blobStore) Get(_ context.Context, id string) (store.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return store.Blob{}, store.ErrNotFound
	}
	return b, nil
}

func (s *blobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

func (s *blobStore) Rename(_ context.Context, id, newFilename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Filename = newFilename
	s.blobs[id] = b
	return nil
}

func (s *blobStore) List(context.Context) ([]store.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Blob, 0, len(s.blobs))
	for _, b := range s.blobs {
		out = append(out, b)
	}
	return out, nil
}

// Store bundles an in-memory implementation of all four persistence ports,
// each independently addressable via its accessor.
type Store struct {
	upstreams *upstreamStore
	vmcps     *vmcpStore
	usageLog  *usageLogStore
	blobs     *blobStore
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		upstreams: newUpstreamStore(),
		vmcps:     newVMCPStore(),
		usageLog:  newUsageLogStore(),
		blobs:     newBlobStore(),
	}
}

// Upstreams returns the UpstreamStore view.
func (s *Store) Upstreams() store.UpstreamStore { return s.upstreams }

// VMCPs returns the VMCPStore view.
func (s *Store) VMCPs() store.VMCPStore { return s.vmcps }

// UsageLog returns the UsageLogStore view.
func (s *Store) UsageLog() store.UsageLogStore { return s.usageLog }

// Blobs returns the BlobStore view.
func (s *Store) Blobs() store.BlobStore { return s.blobs }
