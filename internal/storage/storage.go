package storage

import (
	"context"
	"time"
)

// Scan states recorded in the journal
const (
	ScanRunning  = "running"
	ScanFinished = "finished"
	ScanFailed   = "failed"
)

// Storage defines the interface for the scan journal
type Storage interface {
	// Scan operations
	CreateScan(ctx context.Context, scan *Scan) error
	UpdateScan(ctx context.Context, scan *Scan) error
	GetScan(ctx context.Context, id string) (*Scan, error)
	LatestScan(ctx context.Context, rootPath string) (*Scan, error)
	ListScans(ctx context.Context, limit int) ([]*Scan, error)

	// CompleteScan updates scan and appends event in one transaction
	CompleteScan(ctx context.Context, scan *Scan, event *EventRecord) error

	// Event operations
	AppendEvent(ctx context.Context, event *EventRecord) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error)

	// Database operations
	Close() error
}

// Scan is the journal record of one scan run
type Scan struct {
	ID            string // UUID
	RootPath      string
	State         string // ScanRunning, ScanFinished or ScanFailed
	Forced        bool
	FilesScanned  int
	FilesIndexed  int
	FilesSkipped  int
	FilesRejected int
	FilesFailed   int
	StartedAt     time.Time
	FinishedAt    time.Time // Zero while running
	Duration      time.Duration
	Error         string
}

// EventRecord is a saved event
type EventRecord struct {
	ID        int64
	ScanID    string // Empty for events outside a scan
	Kind      string
	Level     string
	Text      string
	CreatedAt time.Time
}

// EventFilter narrows ListEvents
type EventFilter struct {
	ScanID string // Only events of this scan
	Kind   string // Only events of this kind
	Limit  int    // Most recent N (default: 50, max: 1000)
}
