// Package engine ties the scanner, indexer, watcher, searcher and journal
// together behind the operations a front end needs: scan a root, open a
// directory, find a substring and follow file changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/dshills/substrfind/internal/config"
	"github.com/dshills/substrfind/internal/index"
	"github.com/dshills/substrfind/internal/indexer"
	"github.com/dshills/substrfind/internal/scanner"
	"github.com/dshills/substrfind/internal/searcher"
	"github.com/dshills/substrfind/internal/storage"
	"github.com/dshills/substrfind/internal/watcher"
	"github.com/dshills/substrfind/pkg/types"
)

// ErrJournalDisabled is returned by history queries when no journal is set
var ErrJournalDisabled = errors.New("journal is disabled")

// progressInterval is the minimum spacing of transient progress events
const progressInterval = 100 * time.Millisecond

// ScanOptions modifies a single Scan call
type ScanOptions struct {
	// Force discards the current index even when root is unchanged
	Force bool
}

// ScanReport summarizes a completed scan
type ScanReport struct {
	ScanID             string
	Root               string
	FilesScanned       int
	FilesIndexed       int
	FilesSkipped       int
	FilesRejected      int
	FilesFailed        int
	FilesRemoved       int // Entries dropped because the file vanished or no longer qualifies
	DirectoriesSkipped int
	IndexSize          int // Index keys after the scan
	StartedAt          time.Time
	Duration           time.Duration
}

// Status is a snapshot of the engine
type Status struct {
	State        types.ScanState
	Root         string
	IndexedFiles int
	WatchedFiles int
	Watching     bool
	Journal      bool
	LastScan     *ScanReport
}

// Engine owns the index and the scan state machine
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	sink      func(types.Event)
	store     storage.Storage
	noWatcher bool

	index    *index.Index
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	watcher  *watcher.Watcher // nil when watching is disabled

	lock     scanLock
	state    atomic.Int32
	progress *rate.Limiter

	mu       sync.RWMutex // guards root and lastScan
	root     string
	lastScan *ScanReport

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates an Engine. A nil cfg selects config.Default(). If the platform
// watcher cannot be started the engine runs without one.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		index:    index.New(),
		progress: rate.NewLimiter(rate.Every(progressInterval), 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.indexer = indexer.New(e.index, &indexer.Config{
		Workers:   cfg.Index.Workers,
		GramCap:   cfg.Index.GramCap,
		BlockSize: cfg.Index.BlockSize,
	}, e.logger)

	e.searcher = searcher.NewSearcher(e.index, &searcher.Config{
		Workers:   cfg.Search.Workers,
		BlockSize: cfg.Search.BlockSize,
		CacheSize: cfg.Search.CacheSize,
	}, e.logger)

	if cfg.Watch.Enabled && !e.noWatcher {
		w, err := watcher.New(e, watcher.Options{
			Debounce: cfg.Watch.Debounce,
			Logger:   e.logger,
		})
		if err != nil {
			// Searching still works; changes are picked up by the next scan
			e.logger.Warn("file watching unavailable", "error", err)
		} else {
			e.watcher = w
		}
	}

	e.logger = e.logger.With("component", "engine")
	return e, nil
}

// State returns the current scan state
func (e *Engine) State() types.ScanState {
	return types.ScanState(e.state.Load())
}

// advance moves the state machine one step forward
func (e *Engine) advance() {
	next := e.State().Next()
	e.state.Store(int32(next))
	e.logger.Debug("state changed", "state", next)
}

// scanRun carries per-scan bookkeeping
type scanRun struct {
	id        string
	journaled bool
	record    *storage.Scan
}

// Scan enumerates root, indexes every admissible file and starts watching the
// indexed files.
//
// Scanning the root of the previous scan again only indexes files that are
// not yet index keys. A different root, or opts.Force, replaces the index.
// An invalid root leaves the current index untouched. Only one scan runs at a
// time; a concurrent call fails with types.ErrScanInProgress. Cancelling ctx
// abandons the scan once in-flight files are done; entries installed so far
// stay in the index.
func (e *Engine) Scan(ctx context.Context, root string, opts ScanOptions) (*ScanReport, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}

	abs, err := scanner.ValidateRoot(root)
	if err != nil {
		e.emit(types.Event{Kind: types.EventMessage, Text: err.Error(), Level: "error", Save: true})
		return nil, err
	}

	if !e.lock.TryAcquire() {
		return nil, types.ErrScanInProgress
	}
	defer e.lock.Release()

	e.mu.Lock()
	if e.root != abs || opts.Force {
		e.resetLocked()
		e.root = abs
	}
	e.mu.Unlock()

	run := e.beginRun(ctx, abs, opts.Force)
	report := &ScanReport{ScanID: run.id, Root: abs, StartedAt: time.Now()}

	// Whatever happens, the next scan starts from Prepared
	defer e.state.Store(int32(types.StatePrepared))

	// Prepared -> ScanningDirectories
	e.advance()
	e.emit(types.Event{Kind: types.EventPhase, Text: "scanning directories..", Save: true, ScanID: run.id})

	records, err := scanner.Scan(abs, scanner.Options{
		OnDirectory: func(dir string, done, total int) {
			e.emitProgress(run.id, fmt.Sprintf("scanning %s (%d%%)", dir, done*100/total), done*100/total)
		},
		OnSkip: func(dir string, err error) {
			report.DirectoriesSkipped++
			e.logger.Debug("directory skipped", "dir", dir, "error", err)
		},
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, e.failRun(run, report, err)
	}
	report.FilesScanned = len(records)

	// ScanningDirectories -> IndexingFiles
	e.advance()
	e.emit(types.Event{Kind: types.EventPhase, Text: "indexing files..", Save: true, ScanID: run.id})

	stats, err := e.indexer.IndexFiles(ctx, records, func(p indexer.Progress) {
		e.emitProgress(run.id, fmt.Sprintf("indexing files (%d%%) ..", p.Percent()), p.Percent())
	})
	if stats != nil {
		report.FilesIndexed = stats.FilesIndexed
		report.FilesSkipped = stats.FilesSkipped
		report.FilesRejected = stats.FilesRejected
		report.FilesFailed = stats.FilesFailed
	}
	if err != nil {
		return nil, e.failRun(run, report, err)
	}

	// Files deleted since the previous scan of this root
	removed := e.indexer.Retain(records)
	report.FilesRemoved = stats.FilesEvicted + len(removed)
	for _, path := range removed {
		e.emit(types.Event{Kind: types.EventFileRemoved, Text: "File was removed: " + path, Level: "warn", Save: true, ScanID: run.id})
	}

	e.register()

	// IndexingFiles -> Finished
	e.advance()
	report.IndexSize = e.index.Len()
	report.Duration = time.Since(report.StartedAt)

	e.mu.Lock()
	e.lastScan = report
	e.mu.Unlock()

	finished := types.Event{Kind: types.EventFinished, Text: "FINISHED", Percent: 100, Save: true, ScanID: run.id}
	e.publish(&finished)
	e.completeRun(run, report, storage.ScanFinished, "", &finished)

	e.logger.Info("scan finished",
		"root", abs,
		"scanned", report.FilesScanned,
		"indexed", report.FilesIndexed,
		"rejected", report.FilesRejected,
		"failed", report.FilesFailed,
		"removed", report.FilesRemoved,
		"duration", report.Duration)

	// Finished -> Prepared
	e.advance()
	return report, nil
}

// resetLocked drops the index, the WatchSet and cached results. e.mu must be
// held.
func (e *Engine) resetLocked() {
	e.index.Clear()
	if e.watcher != nil {
		e.watcher.RemoveAll()
	}
	e.searcher.InvalidateCache()
	e.lastScan = nil
}

// register makes the WatchSet equal to the index key set
func (e *Engine) register() {
	if e.watcher == nil {
		return
	}
	for _, path := range e.watcher.Watched() {
		if !e.index.Has(path) {
			e.watcher.Remove(path)
		}
	}
	if err := e.watcher.Add(e.index.Keys()...); err != nil {
		e.logger.Warn("some files cannot be watched", "error", err)
	}
}

// beginRun creates the journal record of a scan
func (e *Engine) beginRun(ctx context.Context, root string, forced bool) *scanRun {
	run := &scanRun{id: uuid.NewString()}
	if e.store == nil {
		return run
	}

	// Recorded even if ctx is already done, so that the failure is journaled too
	run.record = &storage.Scan{ID: run.id, RootPath: root, Forced: forced}
	if err := e.store.CreateScan(context.WithoutCancel(ctx), run.record); err != nil {
		e.logger.Warn("failed to journal scan", "scan_id", run.id, "error", err)
		return run
	}
	run.journaled = true
	return run
}

// completeRun writes the outcome of a scan to the journal
func (e *Engine) completeRun(run *scanRun, report *ScanReport, state, errText string, event *types.Event) {
	if !run.journaled {
		return
	}

	rec := run.record
	rec.State = state
	rec.FilesScanned = report.FilesScanned
	rec.FilesIndexed = report.FilesIndexed
	rec.FilesSkipped = report.FilesSkipped
	rec.FilesRejected = report.FilesRejected
	rec.FilesFailed = report.FilesFailed
	rec.FinishedAt = time.Now()
	rec.Duration = rec.FinishedAt.Sub(report.StartedAt)
	rec.Error = errText

	var record *storage.EventRecord
	if event != nil {
		record = toRecord(*event)
	}

	// The scan context may be cancelled already
	if err := e.store.CompleteScan(context.Background(), rec, record); err != nil {
		e.logger.Warn("failed to journal scan result", "scan_id", run.id, "error", err)
	}
}

// failRun reports an abandoned scan and returns err
func (e *Engine) failRun(run *scanRun, report *ScanReport, err error) error {
	e.logger.Warn("scan abandoned", "root", report.Root, "error", err)

	// Files indexed before the failure stay searchable and watched
	e.register()

	event := types.Event{
		Kind:   types.EventMessage,
		Text:   fmt.Sprintf("scan failed: %v", err),
		Level:  "error",
		Save:   true,
		ScanID: run.id,
	}
	e.publish(&event)
	e.completeRun(run, report, storage.ScanFailed, err.Error(), &event)
	return err
}

// OpenDirectory lists the immediate children of path and flags the files
// that are index keys
func (e *Engine) OpenDirectory(path string) ([]types.DirEntry, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}

	rows, err := scanner.List(path)
	if err != nil {
		e.emit(types.Event{Kind: types.EventMessage, Text: err.Error(), Level: "error", Save: true})
		return nil, err
	}

	for i := range rows {
		rows[i].Indexed = rows[i].Kind == types.KindFile && e.index.Has(rows[i].Path)
	}

	indexed := lo.Filter(rows, func(row types.DirEntry, _ int) bool { return row.Indexed })
	e.emit(types.Event{
		Kind: types.EventMessage,
		Text: fmt.Sprintf("open %s (%d entries, %d indexed)", path, len(rows), len(indexed)),
	})
	return rows, nil
}

// FindSubstring returns the first occurrence of query in every indexed file
// that contains it. It may run during a scan and then sees the entries
// installed so far.
func (e *Engine) FindSubstring(ctx context.Context, query string, useCache bool) (*searcher.SearchResponse, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}

	resp, err := e.searcher.Search(ctx, searcher.SearchRequest{Query: query, UseCache: useCache})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search finished",
		"query_len", len(query),
		"candidates", resp.Candidates,
		"matches", len(resp.Results),
		"cache_hit", resp.CacheHit)
	return resp, nil
}

// Status returns a snapshot of the engine
func (e *Engine) Status() Status {
	e.mu.RLock()
	root := e.root
	var last *ScanReport
	if e.lastScan != nil {
		copied := *e.lastScan
		last = &copied
	}
	e.mu.RUnlock()

	status := Status{
		State:        e.State(),
		Root:         root,
		IndexedFiles: e.index.Len(),
		Watching:     e.watcher != nil,
		Journal:      e.store != nil,
		LastScan:     last,
	}
	if e.watcher != nil {
		status.WatchedFiles = e.watcher.Len()
	}
	return status
}

// IsWatched reports whether path is in the WatchSet
func (e *Engine) IsWatched(path string) bool {
	return e.watcher != nil && e.watcher.IsWatched(path)
}

// RecentEvents returns up to limit saved events, oldest first
func (e *Engine) RecentEvents(ctx context.Context, limit int) ([]*storage.EventRecord, error) {
	if e.store == nil {
		return nil, ErrJournalDisabled
	}
	return e.store.ListEvents(ctx, storage.EventFilter{Limit: limit})
}

// History returns up to limit journaled scans, most recent first
func (e *Engine) History(ctx context.Context, limit int) ([]*storage.Scan, error) {
	if e.store == nil {
		return nil, ErrJournalDisabled
	}
	return e.store.ListScans(ctx, limit)
}

// OnFileChanged re-indexes an indexed file after a change notification. A
// file that is no longer admissible is evicted and stops being watched.
func (e *Engine) OnFileChanged(path string) {
	outcome, err := e.indexer.Reindex(path)

	switch outcome {
	case indexer.OutcomeUpdated:
		e.emit(types.Event{Kind: types.EventFileChanged, Text: "File was changed: " + path, Save: true})

	case indexer.OutcomeEvicted:
		e.logger.Debug("changed file evicted", "path", path, "reason", err)
		e.unwatch(path)
		e.emit(types.Event{Kind: types.EventFileRemoved, Text: "File was removed: " + path, Level: "warn", Save: true})

	default:
		// Not an index key, e.g. the index was replaced since registration
		e.unwatch(path)
	}
}

// OnFileRemoved evicts a file that no longer exists
func (e *Engine) OnFileRemoved(path string) {
	existed := e.indexer.Remove(path)
	e.unwatch(path)
	if existed {
		e.emit(types.Event{Kind: types.EventFileRemoved, Text: "File was removed: " + path, Level: "warn", Save: true})
	}
}

func (e *Engine) unwatch(path string) {
	if e.watcher != nil {
		e.watcher.Remove(path)
	}
}

// Close stops the watcher and closes the journal. It is safe to call more
// than once.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.watcher != nil {
			if err := e.watcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
			}
		}
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// Events

// emitProgress publishes a transient progress event, throttled except for
// completion
func (e *Engine) emitProgress(scanID, text string, percent int) {
	if percent < 100 && !e.progress.Allow() {
		return
	}
	e.emit(types.Event{Kind: types.EventProgress, Text: text, Percent: percent, ScanID: scanID})
}

// emit publishes ev and journals it when ev.Save is set
func (e *Engine) emit(ev types.Event) {
	e.publish(&ev)

	if !ev.Save || e.store == nil {
		return
	}
	if err := e.store.AppendEvent(context.Background(), toRecord(ev)); err != nil {
		e.logger.Warn("failed to journal event", "kind", ev.Kind, "error", err)
	}
}

// publish fills defaults and hands ev to the sink
func (e *Engine) publish(ev *types.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Level == "" {
		ev.Level = "info"
	}
	if e.sink != nil {
		e.sink(*ev)
	}
}

func toRecord(ev types.Event) *storage.EventRecord {
	return &storage.EventRecord{
		ScanID:    ev.ScanID,
		Kind:      string(ev.Kind),
		Level:     ev.Level,
		Text:      ev.Text,
		CreatedAt: ev.Time,
	}
}
