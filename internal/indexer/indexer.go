package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/substrfind/internal/index"
	"github.com/dshills/substrfind/internal/kgram"
	"github.com/dshills/substrfind/pkg/types"
)

// maxErrorMessages bounds Statistics.ErrorMessages
const maxErrorMessages = 100

// Indexer computes k-gram sets for files and installs them into the index
type Indexer struct {
	index  *index.Index
	codec  kgram.Options
	logger *slog.Logger

	// Worker pool configuration
	workers int
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int // Number of concurrent workers (default: runtime.NumCPU())
	GramCap   int // Largest admissible k-gram set (default: kgram.DefaultCap)
	BlockSize int // Read size while streaming files (default: kgram.DefaultBlockSize)
}

// Progress tracks indexing progress. It is passed by value to callbacks.
type Progress struct {
	Total     int // Files handed to IndexFiles
	Processed int // Files finished so far, including skipped ones
	Indexed   int
	Skipped   int // Already indexed from the same file version
	Rejected  int // Invalid UTF-8 or over the k-gram cap
	Failed    int // Could not be opened or read
	StartTime time.Time
}

// Percent returns the completed share in the range 0-100
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Processed * 100 / p.Total
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesRejected int
	FilesFailed   int
	FilesEvicted  int // Previously indexed files that were rejected or failed this time
	Duration      time.Duration
	ErrorMessages []string
}

// Outcome is the result of re-indexing a single path
type Outcome int

const (
	OutcomeIgnored Outcome = iota // path was not an index key
	OutcomeUpdated                // entry replaced with a fresh set
	OutcomeEvicted                // entry removed: rejected, unreadable or gone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeEvicted:
		return "evicted"
	default:
		return "ignored"
	}
}

// New creates a new Indexer writing into idx. A nil config selects defaults.
func New(idx *index.Index, config *Config, logger *slog.Logger) *Indexer {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	codec := kgram.DefaultOptions()
	if config.GramCap > 0 {
		codec.Cap = config.GramCap
	}
	if config.BlockSize > 0 {
		codec.BlockSize = config.BlockSize
	}

	return &Indexer{
		index:   idx,
		codec:   codec,
		logger:  logger.With("component", "indexer"),
		workers: workers,
	}
}

// Admit opens path and computes its k-gram set under the admission rules.
// Errors wrap types.ErrAdmissionRejected for rejected content; anything else
// is an I/O failure. The file is closed on every return path.
func (ix *Indexer) Admit(path string) (kgram.Set, error) {
	set, _, err := ix.admit(path)
	return set, err
}

// admit is Admit plus the version of the file that was read
func (ix *Indexer) admit(path string) (kgram.Set, index.Stamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, index.Stamp{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, index.Stamp{}, err
	}

	set, err := kgram.Compute(f, ix.codec)
	if err != nil {
		return nil, index.Stamp{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, index.Stamp{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// admission is the outcome of one file task
type admission struct {
	path    string
	set     kgram.Set
	stamp   index.Stamp
	err     error
	skipped bool
}

// IndexFiles admits every record that is not already indexed from the same
// file version. A record whose size or modification time differs from the
// indexed one is read again; if it no longer qualifies its entry is evicted.
// Records marked unreadable count as failed without being opened.
//
// Workers only compute sets; a single installer goroutine owns every insert
// into the index, the statistics and the progress callback. Cancelling ctx
// stops new files from being scheduled; files already being read are allowed
// to finish and are still installed, then ctx.Err() is returned.
func (ix *Indexer) IndexFiles(ctx context.Context, records []types.FileRecord, onProgress func(Progress)) (*Statistics, error) {
	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}
	progress := Progress{
		Total:     len(records),
		StartTime: startTime,
	}

	results := make(chan admission, ix.workers)
	var installer sync.WaitGroup
	installer.Add(1)
	go func() {
		defer installer.Done()
		for res := range results {
			ix.install(res, stats, &progress)
			if onProgress != nil {
				onProgress(progress)
			}
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(ix.workers)

	var scheduleErr error
	for _, rec := range records {
		if ctx.Err() != nil {
			scheduleErr = ctx.Err()
			break
		}

		if stamp, ok := ix.index.Stamp(rec.Path); ok && stamp.Matches(rec.Size, rec.ModTime) {
			results <- admission{path: rec.Path, skipped: true}
			continue
		}

		if !rec.Readable {
			results <- admission{path: rec.Path, err: fmt.Errorf("%s: %w", rec.Path, os.ErrPermission)}
			continue
		}

		g.Go(func() error {
			set, stamp, err := ix.admit(rec.Path)
			results <- admission{path: rec.Path, set: set, stamp: stamp, err: err}
			return nil
		})
	}

	// Wait for all goroutines to complete
	_ = g.Wait()
	close(results)
	installer.Wait()

	stats.Duration = time.Since(startTime)
	if scheduleErr != nil {
		return stats, scheduleErr
	}
	return stats, nil
}

// install applies one admission result. Only the installer goroutine calls it.
func (ix *Indexer) install(res admission, stats *Statistics, progress *Progress) {
	progress.Processed++

	switch {
	case res.skipped:
		progress.Skipped++
		stats.FilesSkipped++

	case errors.Is(res.err, types.ErrAdmissionRejected):
		progress.Rejected++
		stats.FilesRejected++
		ix.logger.Debug("file rejected", "path", res.path, "reason", res.err)
		if ix.Remove(res.path) {
			stats.FilesEvicted++
		}

	case res.err != nil:
		progress.Failed++
		stats.FilesFailed++
		ix.logger.Debug("file unreadable", "path", res.path, "error", res.err)
		if len(stats.ErrorMessages) < maxErrorMessages {
			stats.ErrorMessages = append(stats.ErrorMessages, res.err.Error())
		}
		if ix.Remove(res.path) {
			stats.FilesEvicted++
		}

	default:
		unlock := ix.index.LockKey(res.path)
		ix.index.Store(res.path, res.set, res.stamp)
		unlock()
		progress.Indexed++
		stats.FilesIndexed++
	}
}

// Retain evicts every entry whose path is not among records and returns the
// evicted paths in lexical order. After a complete scan of the indexed root
// this drops the files that were deleted since they were indexed.
func (ix *Indexer) Retain(records []types.FileRecord) []string {
	present := make(map[string]struct{}, len(records))
	for _, rec := range records {
		present[rec.Path] = struct{}{}
	}

	removed := ix.index.Retain(func(path string) bool {
		_, ok := present[path]
		return ok
	})
	for _, path := range removed {
		ix.logger.Debug("entry evicted", "path", path, "reason", "no longer present")
	}
	return removed
}

// Reindex recomputes the entry of an indexed path after a change notification.
// If the file is still admissible the entry is swapped for the fresh set,
// otherwise it is evicted. Paths that are not index keys are ignored. The
// returned error explains an eviction and is informational.
func (ix *Indexer) Reindex(path string) (Outcome, error) {
	unlock := ix.index.LockKey(path)
	defer unlock()

	if !ix.index.Has(path) {
		return OutcomeIgnored, nil
	}

	set, stamp, err := ix.admit(path)
	if err != nil {
		if !ix.index.Delete(path) {
			return OutcomeIgnored, nil
		}
		ix.logger.Debug("entry evicted", "path", path, "reason", err)
		return OutcomeEvicted, err
	}

	// The index may have been cleared while the file was read
	if !ix.index.Replace(path, set, stamp) {
		return OutcomeIgnored, nil
	}
	return OutcomeUpdated, nil
}

// Remove evicts the entry of path and reports whether it existed
func (ix *Indexer) Remove(path string) bool {
	unlock := ix.index.LockKey(path)
	defer unlock()
	return ix.index.Delete(path)
}
