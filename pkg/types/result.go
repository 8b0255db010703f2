package types

import "errors"

// Match is one confirmed occurrence of a query in an indexed file.
// Only the first occurrence per file is reported.
type Match struct {
	Path   string // Absolute path of the file
	Offset int64  // Byte offset of the first occurrence from the start of the file
}

// ErrInvalidOffset is returned by Validate for negative offsets
var ErrInvalidOffset = errors.New("offset must be >= 0")

// Validate checks if the match is well formed
func (m *Match) Validate() error {
	if m.Path == "" {
		return ErrPathRequired
	}
	if m.Offset < 0 {
		return ErrInvalidOffset
	}
	return nil
}
