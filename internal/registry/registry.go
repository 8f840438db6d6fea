// Package registry maps client identifiers to their isolated document index
// and index version. No client ever receives a handle into another client's
// resources.
package registry

import (
	"sync"
	"time"

	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/internal/vectorstore"
)

// clientContext is one client's mutable resource slot. Mutated only by
// ingestion swaps, read by every pipeline run.
type clientContext struct {
	id             string
	version        int64
	store          *vectorstore.Store
	documentCount  int
	lastIngestedAt time.Time
}

// Snapshot is a consistent (index, version) pair taken under the registry
// lock. A version bump mid-request cannot split the pair.
type Snapshot struct {
	ClientID       string
	Version        int64
	Store          *vectorstore.Store
	DocumentCount  int
	LastIngestedAt time.Time
}

type Registry struct {
	mu      sync.RWMutex
	clients map[string]*clientContext
}

func New() *Registry {
	return &Registry{
		clients: make(map[string]*clientContext),
	}
}

// Register creates an empty context for a client if one does not exist.
func (r *Registry) Register(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[clientID]; !ok {
		r.clients[clientID] = &clientContext{id: clientID}
	}
}

// Restore installs persisted client state at startup. The index itself is
// rebuilt by ingestion; only the version counter and bookkeeping survive a
// restart, which keeps cache keys stable across restarts.
func (r *Registry) Restore(clientID string, version int64, documentCount int, lastIngestedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[clientID] = &clientContext{
		id:             clientID,
		version:        version,
		documentCount:  documentCount,
		lastIngestedAt: lastIngestedAt,
	}
}

// Snapshot returns the client's current index and version, atomically.
func (r *Registry) Snapshot(clientID string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cc, ok := r.clients[clientID]
	if !ok {
		return Snapshot{}, pipeline.ErrUnknownClient
	}

	return Snapshot{
		ClientID:       cc.id,
		Version:        cc.version,
		Store:          cc.store,
		DocumentCount:  cc.documentCount,
		LastIngestedAt: cc.lastIngestedAt,
	}, nil
}

// Known reports whether a client has been registered.
func (r *Registry) Known(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[clientID]
	return ok
}

// Swap installs a fully built index and bumps the version, atomically from
// the perspective of concurrent Snapshot callers. Returns the new version.
func (r *Registry) Swap(clientID string, store *vectorstore.Store, documentCount int, at time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cc, ok := r.clients[clientID]
	if !ok {
		cc = &clientContext{id: clientID}
		r.clients[clientID] = cc
	}

	cc.store = store
	cc.version++
	cc.documentCount = documentCount
	cc.lastIngestedAt = at

	return cc.version
}

// Clients returns the registered client identifiers.
func (r *Registry) Clients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}
