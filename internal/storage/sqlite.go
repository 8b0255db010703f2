package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db    *sql.DB
	retry RetryConfig
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance. The parent
// directory of dbPath is created if needed; ":memory:" opens a private
// in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, retry: DefaultRetryConfig()}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success. The whole
// transaction is retried while another process holds the journal.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	return retryBusy(ctx, s.retry, func() error {
		return s.runTx(ctx, fn)
	})
}

func (s *SQLiteStorage) runTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Scan operations
//
// Times are written in UTC so that text ordering matches time ordering.

const scanColumns = `
	id, root_path, state, forced, files_scanned, files_indexed, files_skipped,
	files_rejected, files_failed, started_at, finished_at, duration_ms, error
`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScan(row rowScanner) (*Scan, error) {
	var scan Scan
	var finishedAt sql.NullTime
	var scanErr sql.NullString
	var durationMs int64
	err := row.Scan(
		&scan.ID, &scan.RootPath, &scan.State, &scan.Forced,
		&scan.FilesScanned, &scan.FilesIndexed, &scan.FilesSkipped,
		&scan.FilesRejected, &scan.FilesFailed,
		&scan.StartedAt, &finishedAt, &durationMs, &scanErr,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		scan.FinishedAt = finishedAt.Time
	}
	scan.Error = scanErr.String
	scan.Duration = time.Duration(durationMs) * time.Millisecond
	return &scan, nil
}

// CreateScan inserts a new scan record. StartedAt defaults to now and State
// to ScanRunning.
func (s *SQLiteStorage) CreateScan(ctx context.Context, scan *Scan) error {
	if scan.ID == "" {
		return fmt.Errorf("failed to create scan: missing id")
	}
	if scan.StartedAt.IsZero() {
		scan.StartedAt = time.Now()
	}
	if scan.State == "" {
		scan.State = ScanRunning
	}

	query := `
		INSERT INTO scans (id, root_path, state, forced, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	err := retryBusy(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, query,
			scan.ID, scan.RootPath, scan.State, scan.Forced, scan.StartedAt.UTC())
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("scan %s: %w", scan.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) updateScanWithQuerier(ctx context.Context, q querier, scan *Scan) error {
	query := `
		UPDATE scans
		SET state = ?, files_scanned = ?, files_indexed = ?, files_skipped = ?,
		    files_rejected = ?, files_failed = ?, finished_at = ?, duration_ms = ?, error = ?
		WHERE id = ?
	`
	var finishedAt sql.NullTime
	if !scan.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: scan.FinishedAt.UTC(), Valid: true}
	}
	var scanErr sql.NullString
	if scan.Error != "" {
		scanErr = sql.NullString{String: scan.Error, Valid: true}
	}

	result, err := q.ExecContext(ctx, query,
		scan.State, scan.FilesScanned, scan.FilesIndexed, scan.FilesSkipped,
		scan.FilesRejected, scan.FilesFailed, finishedAt, scan.Duration.Milliseconds(), scanErr,
		scan.ID)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan %s: %w", scan.ID, ErrNotFound)
	}
	return nil
}

// UpdateScan writes the mutable fields of scan
func (s *SQLiteStorage) UpdateScan(ctx context.Context, scan *Scan) error {
	return retryBusy(ctx, s.retry, func() error {
		return s.updateScanWithQuerier(ctx, s.db, scan)
	})
}

// GetScan returns the scan with the given id
func (s *SQLiteStorage) GetScan(ctx context.Context, id string) (*Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = ?`
	scan, err := scanScan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return scan, nil
}

// LatestScan returns the most recently started scan of rootPath, or of any
// root when rootPath is empty
func (s *SQLiteStorage) LatestScan(ctx context.Context, rootPath string) (*Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans`
	var args []interface{}
	if rootPath != "" {
		query += ` WHERE root_path = ?`
		args = append(args, rootPath)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT 1`

	scan, err := scanScan(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest scan: %w", err)
	}
	return scan, nil
}

// ListScans returns up to limit scans, most recent first
func (s *SQLiteStorage) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	limit = clampLimit(limit)

	query := `SELECT ` + scanColumns + ` FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// CompleteScan updates scan and appends event atomically
func (s *SQLiteStorage) CompleteScan(ctx context.Context, scan *Scan, event *EventRecord) error {
	return s.withTx(ctx, func(q querier) error {
		if err := s.updateScanWithQuerier(ctx, q, scan); err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		return s.appendEventWithQuerier(ctx, q, event)
	})
}

// Event operations

func (s *SQLiteStorage) appendEventWithQuerier(ctx context.Context, q querier, event *EventRecord) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	var scanID sql.NullString
	if event.ScanID != "" {
		scanID = sql.NullString{String: event.ScanID, Valid: true}
	}

	query := `
		INSERT INTO events (scan_id, kind, level, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query, scanID, event.Kind, event.Level, event.Text, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

// AppendEvent saves event and sets its ID
func (s *SQLiteStorage) AppendEvent(ctx context.Context, event *EventRecord) error {
	return retryBusy(ctx, s.retry, func() error {
		return s.appendEventWithQuerier(ctx, s.db, event)
	})
}

// ListEvents returns the most recent events matching filter in the order
// they were saved
func (s *SQLiteStorage) ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error) {
	var where []string
	var args []interface{}
	if filter.ScanID != "" {
		where = append(where, "scan_id = ?")
		args = append(args, filter.ScanID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := `SELECT id, scan_id, kind, level, text, created_at FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*EventRecord
	for rows.Next() {
		var event EventRecord
		var scanID sql.NullString
		if err := rows.Scan(&event.ID, &scanID, &event.Kind, &event.Level, &event.Text, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.ScanID = scanID.String
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first
	return lo.Reverse(events), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultEventLimit
	}
	if limit > maxEventLimit {
		return maxEventLimit
	}
	return limit
}

// isUniqueViolation matches the constraint error text of both drivers
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
