// Package indexer builds and maintains the k-gram index of a directory tree.
//
// The indexer admits a file when it can be read, is well-formed UTF-8 and its
// set of distinct 3-byte grams is no larger than the configured cap (20000 by
// default). Rejected and unreadable files are left out of the index; they are
// counted in the statistics but never reported as errors.
//
// # Basic Usage
//
//	idx := index.New()
//	ix := indexer.New(idx, &indexer.Config{Workers: 8}, logger)
//
//	records, _ := scanner.Scan("/path/to/tree", scanner.Options{})
//	stats, err := ix.IndexFiles(ctx, records, func(p indexer.Progress) {
//	    fmt.Printf("indexing files (%d%%)\n", p.Percent())
//	})
//
// # Concurrency
//
// Each file is one task in an errgroup limited to Config.Workers. Tasks open,
// stream and close their file and send the result over a channel. One
// installer goroutine receives every result and is the only writer that
// installs or evicts entries during IndexFiles:
//
//	workers --(path, set, stamp, err)--> installer --> index.Store / Remove
//
// A record is skipped when the index already holds it from the same size and
// modification time. Retain then drops the keys a complete scan no longer
// found.
//
// # Change Notifications
//
// Reindex reruns admission for a single path under the index's per-key lock
// and either swaps the entry or evicts it. The swap only happens if the key
// survived the read, so a concurrent Clear is never undone:
//
//	outcome, reason := ix.Reindex(path)
//	if outcome == indexer.OutcomeEvicted {
//	    log.Printf("dropped %s: %v", path, reason)
//	}
package indexer
