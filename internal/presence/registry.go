// Package presence tracks which users currently hold live push connections
// on this node.
package presence

import (
	"hash/maphash"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const shardCount = 32

// ConnectionID identifies one live connection. A user may hold several.
type ConnectionID string

// Stats is a point-in-time view of the registry.
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

type shard struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[ConnectionID]struct{}
}

// Registry maps users to their live connections. Users are spread over
// shards, each with its own lock, so unrelated users do not contend.
type Registry struct {
	seed   maphash.Seed
	shards [shardCount]*shard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{seed: maphash.MakeSeed()}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[uuid.UUID]map[ConnectionID]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID uuid.UUID) *shard {
	h := maphash.Bytes(r.seed, userID[:])
	return r.shards[h%shardCount]
}

// Register adds a connection for the user. Registering the same pair twice
// is a no-op.
func (r *Registry) Register(userID uuid.UUID, connID ConnectionID) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[ConnectionID]struct{})
		s.users[userID] = conns
	}
	conns[connID] = struct{}{}
}

// Unregister removes a connection. The user's entry is dropped once the last
// connection goes. Unknown pairs are ignored.
func (r *Registry) Unregister(userID uuid.UUID, connID ConnectionID) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(s.users, userID)
	}
}

// ConnectionsFor returns a sorted copy of the user's connections. Callers
// may hold it while the registry changes underneath.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []ConnectionID {
	s := r.shardFor(userID)
	s.mu.RLock()
	conns := s.users[userID]
	out := make([]ConnectionID, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports whether the user has at least one connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// Stats counts users and connections across all shards. Shards are read one
// at a time, so the totals are not a single atomic snapshot.
func (r *Registry) Stats() Stats {
	var stats Stats
	for _, s := range r.shards {
		s.mu.RLock()
		stats.Users += len(s.users)
		for _, conns := range s.users {
			stats.Connections += len(conns)
		}
		s.mu.RUnlock()
	}
	return stats
}
