package core

import "sync"

// Registry is the process-wide map from project id to the room of
// clients currently viewing that project. Rooms are created lazily on
// first join and discarded when their last member leaves.
//
// The hub loop is the only writer, but presence and stats endpoints
// read concurrently, so all access goes through the mutex. Rooms are
// independent namespaces; a single lock over the map is enough at the
// membership sizes this serves.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	joined map[*Client]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		joined: make(map[*Client]string),
	}
}

// JoinResult reports the outcome of a Join.
type JoinResult struct {
	Project    string
	TotalUsers int
	// Already is set when the client was a member of this room before
	// the call; the join is idempotent and nothing changed.
	Already bool
	// PrevProject names the room the client was implicitly removed
	// from, empty if none. PrevTotal is that room's remaining size.
	PrevProject string
	PrevTotal   int
}

// Join adds c to the project's room, creating the room if absent. A
// client is a member of at most one room: joining a different project
// first removes it from the old one. Idempotent per (client, project).
func (r *Registry) Join(project string, c *Client) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.joined[c]; ok {
		if current == project {
			return JoinResult{Project: project, TotalUsers: len(r.rooms[project].members), Already: true}
		}
		res := JoinResult{Project: project, PrevProject: current}
		res.PrevTotal = r.removeLocked(current, c)
		r.addLocked(project, c)
		res.TotalUsers = len(r.rooms[project].members)
		return res
	}

	r.addLocked(project, c)
	return JoinResult{Project: project, TotalUsers: len(r.rooms[project].members)}
}

// Leave removes c from the project's room. Not being a member is a
// no-op, not an error: disconnects race with explicit leaves. The room
// entry is destroyed when its member set becomes empty.
func (r *Registry) Leave(project string, c *Client) (totalUsers int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.joined[c]
	if !ok || current != project {
		return 0, false
	}
	return r.removeLocked(project, c), true
}

// LeaveCurrent removes c from whatever room it is in, used for the
// implicit leave on disconnect.
func (r *Registry) LeaveCurrent(c *Client) (project string, totalUsers int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.joined[c]
	if !ok {
		return "", 0, false
	}
	return project, r.removeLocked(project, c), true
}

// Project returns the room the client is currently in, empty if none.
func (r *Registry) Project(c *Client) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joined[c]
}

// MembersOf returns a snapshot of the room's members, nil if the room
// does not exist.
func (r *Registry) MembersOf(project string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[project]
	if !ok {
		return nil
	}
	members := make([]*Client, 0, len(rm.members))
	for c := range rm.members {
		members = append(members, c)
	}
	return members
}

// Users returns the display names of the room's members for the
// presence endpoint.
func (r *Registry) Users(project string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[project]
	if !ok {
		return nil
	}
	users := make([]string, 0, len(rm.members))
	for c := range rm.members {
		users = append(users, c.User)
	}
	return users
}

// Count returns the current size of the project's room.
func (r *Registry) Count(project string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[project]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// Stats reports open rooms and total members across them.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms = len(r.rooms)
	for _, rm := range r.rooms {
		members += len(rm.members)
	}
	return rooms, members
}

// Broadcast queues ev for every member of the project's room except
// the originator. Returns deliveries made and deliveries dropped on
// full client buffers.
func (r *Registry) Broadcast(project string, ev *Event, except *Client) (delivered, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[project]
	if !ok {
		return 0, 0
	}
	dropped = rm.broadcast(ev, except)
	delivered = len(rm.members) - dropped
	if except != nil {
		if _, isMember := rm.members[except]; isMember {
			delivered--
		}
	}
	return delivered, dropped
}

func (r *Registry) addLocked(project string, c *Client) {
	rm, ok := r.rooms[project]
	if !ok {
		rm = newRoom(project)
		r.rooms[project] = rm
	}
	rm.add(c)
	r.joined[c] = project
}

func (r *Registry) removeLocked(project string, c *Client) (totalUsers int) {
	rm, ok := r.rooms[project]
	if !ok {
		delete(r.joined, c)
		return 0
	}
	rm.remove(c)
	delete(r.joined, c)
	if rm.empty() {
		delete(r.rooms, project)
		return 0
	}
	return len(rm.members)
}
