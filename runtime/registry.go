// Package runtime owns the in-process room state of the relay: which
// connections exist and which conversation rooms they belong to.
package runtime

import (
	"sync"

	"chat-relay/contract"
)

type Set map[string]struct{}

// Registry maps conversation rooms to member connections. It is an
// explicit, injected object rather than ambient state, so tests can run
// several independent registries side by side.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]contract.EventSink // connection id -> delivery target
	rooms map[string]Set                // conversation id -> connection ids
}

func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]contract.EventSink),
		rooms: make(map[string]Set),
	}
}

// Register attaches a connection's delivery sink. It must be called before
// the first Join for that connection.
func (r *Registry) Register(connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connID] = sink
}

// Join adds the connection to a room's membership set. Joining a room the
// connection is already in is a no-op; the room is materialized lazily on
// first join.
func (r *Registry) Join(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(Set)
	}
	r.rooms[roomID][connID] = struct{}{}
}

// Leave removes the connection everywhere. This is the only membership
// removal path; it runs on connection teardown. Empty room sets are
// dropped so the map doesn't grow over process lifetime.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, connID)

	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// SinksForRoom returns a snapshot of the room's current delivery targets,
// optionally excluding one connection (the sender). The snapshot is taken
// under a read lock; a join racing the broadcast may miss the in-flight
// event, which is acceptable at-most-once behavior per membership snapshot.
func (r *Registry) SinksForRoom(roomID, excludeConnID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	sinks := make([]contract.EventSink, 0, len(members))
	for connID := range members {
		if connID == excludeConnID {
			continue
		}
		if sink, exists := r.sinks[connID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
