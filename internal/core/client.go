package core

// Client is a collaborator connection as seen by the core layer.
// ID is unique per connection and never reused; User is the display
// name supplied by the identity layer for event attribution.
type Client struct {
	ID       string
	User     string
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels. buffer
// bounds the outbound event queue; events beyond it are dropped for
// this client rather than stalling the hub.
func NewClient(id, user string, buffer int) *Client {
	if user == "" {
		user = id
	}
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		ID:       id,
		User:     user,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
	}
}

// trySend queues an event without blocking. Reports false when the
// client's buffer is full and the event was dropped.
func (c *Client) trySend(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
