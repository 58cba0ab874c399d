package core

// room groups clients collaborating on the same project. It is owned
// by the Registry; nothing else mutates the member set.
type room struct {
	project string
	members map[*Client]struct{}
}

func newRoom(project string) *room {
	return &room{
		project: project,
		members: make(map[*Client]struct{}),
	}
}

// add inserts a client. Returns true if newly added.
func (r *room) add(c *Client) bool {
	if _, exists := r.members[c]; exists {
		return false
	}
	r.members[c] = struct{}{}
	return true
}

// remove deletes a client. Returns true if it was a member.
func (r *room) remove(c *Client) bool {
	if _, exists := r.members[c]; !exists {
		return false
	}
	delete(r.members, c)
	return true
}

func (r *room) empty() bool {
	return len(r.members) == 0
}

// broadcast queues an event for every member except the originator.
// Returns how many deliveries were dropped on full buffers.
func (r *room) broadcast(ev *Event, except *Client) (dropped int) {
	for member := range r.members {
		if member == except {
			continue
		}
		if !member.trySend(ev) {
			dropped++
		}
	}
	return dropped
}
