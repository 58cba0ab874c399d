package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/store"
)

type inboundCommand struct {
	client *Client
	cmd    *Command
}

// Hub routes client commands to the registry and fans resulting events
// back out to room members. A single Run loop serializes every
// membership mutation, so no two joins or leaves on the same project
// can interleave; per-client delivery stays concurrent through the
// clients' buffered event channels.
type Hub struct {
	registry *Registry
	store    store.Store
	log      *zerolog.Logger

	inbox      chan inboundCommand
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a hub over the given registry. The store is optional;
// when present, joins and leaves are recorded to it best-effort. A nil
// logger disables logging.
func NewHub(registry *Registry, st store.Store, logger *zerolog.Logger) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry:   registry,
		store:      st,
		log:        logger,
		inbox:      make(chan inboundCommand, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Registry exposes the hub's registry for presence reads.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RegisterClient makes the hub aware of a new connection and starts
// draining its command channel. Commands from a single client reach
// the loop in send order.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		return
	}

	go func() {
		for cmd := range c.Commands {
			select {
			case h.inbox <- inboundCommand{client: c, cmd: cmd}:
			case <-h.done:
				return
			}
		}
	}()
}

// UnregisterClient removes the connection, triggering the implicit
// leave of its current room. Safe to call for a client that already
// left or never joined.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	registered := make(map[*Client]struct{})

	for {
		select {
		case c := <-h.register:
			registered[c] = struct{}{}
			h.log.Debug().Str("client_id", c.ID).Str("user", c.User).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := registered[c]; !ok {
				continue
			}
			delete(registered, c)
			h.disconnect(c)
		case in := <-h.inbox:
			if _, ok := registered[in.client]; !ok {
				// Command raced an unregister; the sender is gone.
				continue
			}
			h.dispatch(in.client, in.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(c *Client, cmd *Command) {
	now := time.Now()
	switch cmd.Kind {
	case CommandJoinProject:
		h.handleJoin(c, cmd.Project, now)
	case CommandLeaveProject:
		h.handleLeave(c, cmd.Project, now)
	case CommandCodeChange:
		if cmd.Code == nil {
			h.sendError(c, ErrCodeBadRequest, "missing code payload", now)
			return
		}
		h.handleCodeChange(c, cmd, now)
	case CommandCursorChange:
		if cmd.Cursor == nil {
			h.sendError(c, ErrCodeBadRequest, "missing cursor payload", now)
			return
		}
		h.handleCursorChange(c, cmd, now)
	}
}

func (h *Hub) handleJoin(c *Client, project string, now time.Time) {
	if project == "" {
		h.sendError(c, ErrCodeBadRequest, "projectId is required", now)
		return
	}

	res := h.registry.Join(project, c)

	if res.PrevProject != "" {
		h.broadcast(res.PrevProject, &Event{
			Kind:       EventUserLeft,
			Project:    res.PrevProject,
			User:       c.User,
			TotalUsers: res.PrevTotal,
			At:         now,
		}, c)
		h.record(store.ActivityLeft, res.PrevProject, c)
	}

	if !c.trySend(&Event{
		Kind:       EventJoinedProject,
		Project:    project,
		TotalUsers: res.TotalUsers,
		At:         now,
	}) {
		h.log.Warn().Str("client_id", c.ID).Str("project_id", project).Msg("join ack dropped, client buffer full")
	}

	if res.Already {
		return
	}

	h.log.Info().
		Str("client_id", c.ID).
		Str("user", c.User).
		Str("project_id", project).
		Int("total_users", res.TotalUsers).
		Msg("user joined project")

	h.broadcast(project, &Event{
		Kind:       EventUserJoined,
		Project:    project,
		User:       c.User,
		TotalUsers: res.TotalUsers,
		At:         now,
	}, c)
	h.record(store.ActivityJoined, project, c)
}

func (h *Hub) handleLeave(c *Client, project string, now time.Time) {
	if project == "" {
		project = h.registry.Project(c)
	}
	total, removed := h.registry.Leave(project, c)
	if !removed {
		// Leaving a room the client is not in is not an error; a
		// disconnect may have raced the explicit leave.
		return
	}
	h.afterLeave(c, project, total, now)
}

// disconnect runs the implicit leave for a dropped connection.
func (h *Hub) disconnect(c *Client) {
	h.log.Debug().Str("client_id", c.ID).Str("user", c.User).Msg("client unregistered")
	project, total, removed := h.registry.LeaveCurrent(c)
	if !removed {
		return
	}
	h.afterLeave(c, project, total, time.Now())
}

func (h *Hub) afterLeave(c *Client, project string, total int, now time.Time) {
	h.log.Info().
		Str("client_id", c.ID).
		Str("user", c.User).
		Str("project_id", project).
		Int("total_users", total).
		Msg("user left project")

	h.broadcast(project, &Event{
		Kind:       EventUserLeft,
		Project:    project,
		User:       c.User,
		TotalUsers: total,
		At:         now,
	}, c)
	h.record(store.ActivityLeft, project, c)
}

func (h *Hub) handleCodeChange(c *Client, cmd *Command, now time.Time) {
	project, ok := h.validateEdit(c, cmd.Project, cmd.Code.FilePath, now)
	if !ok {
		return
	}
	h.broadcast(project, &Event{
		Kind:    EventCodeUpdate,
		Project: project,
		User:    c.User,
		Code:    cmd.Code,
		At:      now,
	}, c)
}

func (h *Hub) handleCursorChange(c *Client, cmd *Command, now time.Time) {
	project, ok := h.validateEdit(c, cmd.Project, cmd.Cursor.FilePath, now)
	if !ok {
		return
	}
	h.broadcast(project, &Event{
		Kind:    EventCursorUpdate,
		Project: project,
		User:    c.User,
		Cursor:  cmd.Cursor,
		At:      now,
	}, c)
}

// validateEdit enforces that edit events carry a file path and name
// the room the client actually joined. Invalid events are dropped and
// answered with an error to the sender only.
func (h *Hub) validateEdit(c *Client, project, filePath string, now time.Time) (string, bool) {
	if filePath == "" {
		h.sendError(c, ErrCodeBadRequest, "filePath is required", now)
		return "", false
	}
	current := h.registry.Project(c)
	if current == "" {
		h.log.Warn().Str("client_id", c.ID).Str("project_id", project).Msg("edit from client outside any project")
		h.sendError(c, ErrCodeNotInProject, "join a project before sending edits", now)
		return "", false
	}
	if project != current {
		h.log.Warn().
			Str("client_id", c.ID).
			Str("project_id", project).
			Str("current_project", current).
			Msg("edit names a project the client has not joined")
		h.sendError(c, ErrCodeProjectMismatch, "event projectId does not match joined project", now)
		return "", false
	}
	return current, true
}

func (h *Hub) broadcast(project string, ev *Event, except *Client) {
	delivered, dropped := h.registry.Broadcast(project, ev, except)
	if dropped > 0 {
		h.log.Warn().
			Str("project_id", project).
			Int("delivered", delivered).
			Int("dropped", dropped).
			Int("kind", int(ev.Kind)).
			Msg("fan-out dropped events for slow consumers")
	}
}

func (h *Hub) sendError(c *Client, code, msg string, now time.Time) {
	c.trySend(&Event{
		Kind:  EventError,
		Error: coreError(code, msg),
		At:    now,
	})
}

// record writes a membership change to the activity store without
// blocking the hub loop. Failures are logged and otherwise ignored.
func (h *Hub) record(kind store.ActivityKind, project string, c *Client) {
	if h.store == nil {
		return
	}
	act := store.Activity{
		ProjectID:  project,
		ClientID:   c.ID,
		User:       c.User,
		Kind:       kind,
		OccurredAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := h.store.RecordActivity(ctx, act); err != nil {
			h.log.Warn().Err(err).Str("project_id", project).Msg("failed to record activity")
		}
	}()
}
