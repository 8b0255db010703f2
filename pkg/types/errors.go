package types

import "errors"

// Domain errors shared across the engine
var (
	// Admission errors: the file is valid input but is kept out of the index
	ErrAdmissionRejected = errors.New("admission rejected")

	// Root path errors reported to the caller of Scan and OpenDirectory
	ErrInvalidRoot     = errors.New("invalid root")
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrPathNotReadable = errors.New("path is not readable")

	// Engine errors
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrScanInProgress = errors.New("scan already in progress")
	ErrClosed         = errors.New("engine is closed")
)
