// Package registry implements the ref registry: a session-scoped,
// monotonically-assigned mapping from "@eN" refs to
// NodeIdentity. The counter is owned by the registry and is never
// decremented or reused, even across clears, so refs from a just-cleared
// snapshot can never collide with refs from the next one.
package registry

import (
	"fmt"
	"sync"

	"github.com/use-agent/browser-stream/internal/model"
)

// Registry is safe for concurrent use, though the orchestrator's
// single-threaded event loop means it is in practice only ever
// touched from one goroutine at a time; the mutex exists so the fake CDP
// channel's background event delivery in tests can't race with it.
type Registry struct {
	mu      sync.Mutex
	counter uint64
	entries map[string]*model.NodeIdentity
}

// New creates an empty registry with the counter at zero.
func New() *Registry {
	return &Registry{entries: make(map[string]*model.NodeIdentity)}
}

// Assign increments the counter, stores identity with Stale=false, and
// returns the new ref. identity is copied so later mutation by the caller
// doesn't alias registry state.
func (r *Registry) Assign(identity model.NodeIdentity) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	ref := fmt.Sprintf("@e%d", r.counter)
	id := identity
	id.Stale = false
	r.entries[ref] = &id
	return ref
}

// Get returns the stored identity for ref and whether it exists.
func (r *Registry) Get(ref string) (model.NodeIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.entries[ref]
	if !ok {
		return model.NodeIdentity{}, false
	}
	return *id, true
}

// Update replaces the stored identity for ref in place (used by the
// resolver after a domPath-based re-resolution refreshes BackendNodeID
// and blanks AXNodeID). It is a no-op if ref is not present.
func (r *Registry) Update(ref string, identity model.NodeIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[ref]; !ok {
		return
	}
	id := identity
	r.entries[ref] = &id
}

// MarkAllStale flips every stored identity's Stale flag, without
// discarding any entries. Called on successful navigation.
func (r *Registry) MarkAllStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.entries {
		id.Stale = true
	}
}

// Clear empties the map but preserves the counter, so refs assigned after
// Clear never collide with refs assigned before it.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*model.NodeIdentity)
}

// Free removes a single ref.
func (r *Registry) Free(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, ref)
}

// ResetCounter is a test-only hook that zeroes the counter. It must never
// be called from production code paths.
func (r *Registry) ResetCounter() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter = 0
}

// Len reports the number of live entries (used by the ambient debug
// server's /debug/registry endpoint).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Counter reports the current counter value (debug surface only).
func (r *Registry) Counter() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counter
}
