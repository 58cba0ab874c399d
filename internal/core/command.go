package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinProject subscribes the client to a project session.
	CommandJoinProject CommandKind = iota
	// CommandLeaveProject unsubscribes the client from a project session.
	CommandLeaveProject
	// CommandCodeChange publishes a file edit to project collaborators.
	CommandCodeChange
	// CommandCursorChange publishes a cursor move to project collaborators.
	CommandCursorChange
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Project string
	Code    *CodeChange   // set for CommandCodeChange
	Cursor  *CursorChange // set for CommandCursorChange
}
