package types

// ScanState is the phase of a scan. A scan moves strictly forward through
// Prepared, ScanningDirectories, IndexingFiles and Finished, then returns to
// Prepared so the next scan can start.
type ScanState int32

const (
	StatePrepared ScanState = iota
	StateScanningDirectories
	StateIndexingFiles
	StateFinished
)

func (s ScanState) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateScanningDirectories:
		return "scanning_directories"
	case StateIndexingFiles:
		return "indexing_files"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Next returns the state that follows s in a scan
func (s ScanState) Next() ScanState {
	if s >= StateFinished {
		return StatePrepared
	}
	return s + 1
}
