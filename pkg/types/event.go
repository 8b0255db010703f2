package types

import "time"

// EventKind identifies what an Event reports
type EventKind string

const (
	EventPhase       EventKind = "phase"
	EventProgress    EventKind = "progress"
	EventMessage     EventKind = "message"
	EventFinished    EventKind = "finished"
	EventFileChanged EventKind = "file_changed"
	EventFileRemoved EventKind = "file_removed"
)

// Event is a progress or status notification streamed to the caller.
// Events with Save set are kept in the journal; the others are transient
// status lines that the next event replaces.
type Event struct {
	Kind    EventKind
	Text    string
	Percent int // 0-100, progress events only
	Save    bool
	Level   string // "info", "warn", "error"
	ScanID  string
	Time    time.Time
}
