package presence

import (
	"sort"
	"sync"
)

// Registry tracks which users currently hold at least one live connection.
// State is process-local and rebuilt from scratch on restart. Entries are
// reference counted per connection so that a user with two open devices stays
// online when one of them disconnects.
type Registry struct {
	mu     sync.RWMutex
	counts map[int]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: make(map[int]int)}
}

// MarkOnline records one more live connection for the user.
func (r *Registry) MarkOnline(userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[userID]++
}

// MarkOffline releases one connection for the user. Calling it for a user
// with no recorded connections is a no-op.
func (r *Registry) MarkOffline(userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.counts[userID]
	if !ok {
		return
	}
	if count <= 1 {
		delete(r.counts, userID)
		return
	}
	r.counts[userID] = count - 1
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[userID] > 0
}

// Snapshot returns the sorted set of online user ids. Each user appears at
// most once regardless of connection count.
func (r *Registry) Snapshot() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}
