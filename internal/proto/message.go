package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinProject  = "join-project"
	InboundTypeLeaveProject = "leave-project"
	InboundTypeCodeChange   = "code-change"
	InboundTypeCursorChange = "cursor-change"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventJoinedProject = "joined-project"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventCodeUpdate    = "code-update"
	EventCursorUpdate  = "cursor-update"
)

// Position is a cursor location. Lines are 1-based, columns 0-based.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection is a range between two positions.
type Selection struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// JoinProjectData requests to join (or leave) a project session.
type JoinProjectData struct {
	ProjectID string `json:"projectId"`
}

// CodeChangeData is a full-file edit from the client.
type CodeChangeData struct {
	ProjectID      string    `json:"projectId"`
	FilePath       string    `json:"filePath"`
	NewContent     string    `json:"newContent"`
	CursorPosition *Position `json:"cursorPosition,omitempty"`
}

// CursorChangeData is a cursor move from the client. CursorPosition is
// a pointer so that an absent field is distinguishable from {0,0}.
type CursorChangeData struct {
	ProjectID      string     `json:"projectId"`
	FilePath       string     `json:"filePath"`
	CursorPosition *Position  `json:"cursorPosition"`
	Selection      *Selection `json:"selection,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JoinedProjectEvent acknowledges the sender's join.
type JoinedProjectEvent struct {
	ProjectID  string `json:"projectId"`
	TotalUsers int    `json:"totalUsers"`
}

// UserJoinedEvent notifies members that a user joined their project.
type UserJoinedEvent struct {
	User       string `json:"user"`
	TotalUsers int    `json:"totalUsers"`
}

// UserLeftEvent notifies members that a user left their project.
type UserLeftEvent struct {
	User       string `json:"user"`
	TotalUsers int    `json:"totalUsers"`
}

// CodeUpdateEvent delivers a collaborator's edit. Timestamp is server
// receipt time in Unix milliseconds.
type CodeUpdateEvent struct {
	FilePath       string    `json:"filePath"`
	NewContent     string    `json:"newContent"`
	CursorPosition *Position `json:"cursorPosition,omitempty"`
	UserID         string    `json:"userId"`
	Timestamp      int64     `json:"timestamp"`
}

// CursorUpdateEvent delivers a collaborator's cursor move.
type CursorUpdateEvent struct {
	FilePath       string     `json:"filePath"`
	CursorPosition Position   `json:"cursorPosition"`
	Selection      *Selection `json:"selection,omitempty"`
	UserID         string     `json:"userId"`
	Timestamp      int64      `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
