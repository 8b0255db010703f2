package types

import "time"

// FileRecord describes a regular file found while enumerating a directory tree.
// Records are immutable and only live until the file has been indexed.
type FileRecord struct {
	Path     string // Absolute path, unique within one scan
	Size     int64
	ModTime  time.Time
	Readable bool // Some read permission bit is set; files without one are not opened
}

// EntryKind classifies a directory listing row
type EntryKind string

const (
	KindDirectory EntryKind = "directory"
	KindFile      EntryKind = "file"
	KindOther     EntryKind = ""
)

// DirEntry is one row of a directory listing
type DirEntry struct {
	Name    string
	Path    string // Absolute path
	Kind    EntryKind
	Size    int64 // Zero for anything but files
	ModTime time.Time
	Indexed bool // Path is currently an index key
}
