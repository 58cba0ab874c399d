package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinedProject acknowledges the sender's own join.
	EventJoinedProject EventKind = iota
	// EventUserJoined notifies room members that someone joined.
	EventUserJoined
	// EventUserLeft notifies room members that someone left.
	EventUserLeft
	// EventCodeUpdate delivers a collaborator's file edit.
	EventCodeUpdate
	// EventCursorUpdate delivers a collaborator's cursor move.
	EventCursorUpdate
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// At is the server receipt time of the command that produced it.
type Event struct {
	Kind       EventKind
	Project    string
	User       string
	TotalUsers int
	Code       *CodeChange
	Cursor     *CursorChange
	At         time.Time
	Error      *CoreError
}
