// Package storage provides the SQLite scan journal.
//
// The journal records:
//   - Scan runs (root, outcome counters, timing, failure text)
//   - Saved events (phase changes, file changes and removals, finish lines)
//
// The in-memory k-gram index is not persisted; the journal only keeps the
// history of what the engine did.
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations
//   - scans: one row per scan, keyed by UUID
//   - events: saved events, optionally linked to a scan
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.substrfind/journal.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	scan := &storage.Scan{ID: uuid.NewString(), RootPath: root}
//	if err := db.CreateScan(ctx, scan); err != nil {
//	    return err
//	}
//
//	scan.State = storage.ScanFinished
//	scan.FinishedAt = time.Now()
//	err = db.CompleteScan(ctx, scan, &storage.EventRecord{
//	    ScanID: scan.ID,
//	    Kind:   "finished",
//	    Text:   "FINISHED",
//	})
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C toolchain:
//
//	CGO_ENABLED=0 go build ./...
//
// The sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// # Migrations
//
// Migrations are ordered by semantic version and applied on open. The current
// version is the highest recorded in schema_version.
package storage
