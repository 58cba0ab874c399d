package collab

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

// CodeUpdate is emitted when a collaborator edits a file.
type CodeUpdate struct {
	FilePath       string    `json:"filePath"`
	NewContent     string    `json:"newContent"`
	CursorPosition *Position `json:"cursorPosition,omitempty"`
	UserID         string    `json:"userId"`
	Timestamp      int64     `json:"timestamp"` // Unix milliseconds, server receipt time
}

// CursorUpdate is emitted when a collaborator moves their cursor.
type CursorUpdate struct {
	FilePath       string     `json:"filePath"`
	CursorPosition Position   `json:"cursorPosition"`
	Selection      *Selection `json:"selection,omitempty"`
	UserID         string     `json:"userId"`
	Timestamp      int64      `json:"timestamp"`
}

// Presence is emitted on membership changes in the joined project.
// Event is one of "joined-project", "user-joined", "user-left".
type Presence struct {
	Event      string
	ProjectID  string
	User       string
	TotalUsers int
}
