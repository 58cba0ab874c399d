package core

// Position is a cursor location inside a file. Lines are 1-based,
// columns 0-based, matching the editor the UI embeds.
type Position struct {
	Line   int
	Column int
}

// Selection is an inclusive range between two positions.
type Selection struct {
	Start Position
	End   Position
}

// CodeChange is a full-file replacement emitted by one collaborator.
// The payload is not a diff: the receiving editor swaps the whole
// buffer for FilePath.
type CodeChange struct {
	FilePath   string
	NewContent string
	Cursor     *Position
}

// CursorChange reports a collaborator's cursor (and optional selection)
// moving inside a file.
type CursorChange struct {
	FilePath  string
	Cursor    Position
	Selection *Selection
}
