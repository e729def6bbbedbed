// Package registry holds the process-wide room membership state: which
// connection is present in which room under which username. It is the only
// shared mutable structure in the core; every operation runs under a single
// lock so the check-then-insert of Register is one critical section.
package registry

import "sync"

// entry binds one live connection to a username inside a room.
type entry struct {
	connID   string
	username string
}

// Registry maps room identifiers to their ordered membership entries. Rooms
// exist implicitly: created on first Register, gone once their last entry is
// removed.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{rooms: make(map[string][]entry)}
}

// Register inserts the (connID, username) pair into the room. It returns
// ErrUsernameTaken when the username is already present among the room's
// entries; no two concurrent callers can both succeed with the same name.
func (r *Registry) Register(room, connID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.rooms[room] {
		if e.username == username {
			return ErrUsernameTaken
		}
	}
	r.rooms[room] = append(r.rooms[room], entry{connID: connID, username: username})
	return nil
}

// Deregister removes the connection's entry from the room and reports whether
// anything was removed. Absent rooms or connections are a no-op.
func (r *Registry) Deregister(room, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.rooms[room]
	if !ok {
		return false
	}
	for i, e := range entries {
		if e.connID == connID {
			r.rooms[room] = append(entries[:i], entries[i+1:]...)
			if len(r.rooms[room]) == 0 {
				delete(r.rooms, room)
			}
			return true
		}
	}
	return false
}

// Roster returns the room's usernames in registration order. Unknown rooms
// yield an empty slice.
func (r *Registry) Roster(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.rooms[room]
	users := make([]string, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.username)
	}
	return users
}

// Connections returns the room's connection IDs in registration order.
func (r *Registry) Connections(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.rooms[room]
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.connID)
	}
	return ids
}

// IsUsernameTaken reports whether the username is currently registered in the
// room. The read observes a consistent snapshot, never a half-applied
// registration.
func (r *Registry) IsUsernameTaken(room, username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.rooms[room] {
		if e.username == username {
			return true
		}
	}
	return false
}
