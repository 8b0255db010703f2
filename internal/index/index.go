// Package index holds the in-memory map from file path to k-gram set.
//
// The index is the only long-lived mutable structure in substrfind. All
// structural changes go through one RWMutex. Entries are immutable sets that
// are swapped in whole, so a reader sees either the old or the new set of a
// file, never a half-built one.
package index

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/substrfind/internal/kgram"
)

// keyStripes is the number of per-key mutexes
const keyStripes = 64

// Stamp identifies the file version an entry was computed from
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// Matches reports whether the file described by size and modTime is the
// version s was taken from. A zero stamp matches nothing.
func (s Stamp) Matches(size int64, modTime time.Time) bool {
	if s.ModTime.IsZero() {
		return false
	}
	return s.Size == size && s.ModTime.Equal(modTime)
}

type entry struct {
	set   kgram.Set
	stamp Stamp
}

// Index maps absolute file paths to their k-gram sets
type Index struct {
	mu         sync.RWMutex
	entries    map[string]entry
	generation atomic.Uint64

	keyLocks [keyStripes]sync.Mutex
}

// New creates an empty index
func New() *Index {
	return &Index{
		entries: make(map[string]entry),
	}
}

// LockKey serializes recompute-and-install sequences for one path. Different
// paths usually map to different stripes and proceed in parallel. The
// returned func releases the lock.
func (x *Index) LockKey(path string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	m := &x.keyLocks[h.Sum32()%keyStripes]
	m.Lock()
	return m.Unlock
}

// Get returns the k-gram set of path
func (x *Index) Get(path string) (kgram.Set, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[path]
	return e.set, ok
}

// Stamp returns the file version the entry of path was computed from
func (x *Index) Stamp(path string) (Stamp, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[path]
	return e.stamp, ok
}

// Has reports whether path is an index key
func (x *Index) Has(path string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[path]
	return ok
}

// Put installs or replaces the entry of path with an unknown file version.
// The set must not be modified afterwards.
func (x *Index) Put(path string, set kgram.Set) {
	x.Store(path, set, Stamp{})
}

// Store installs or replaces the entry of path. The set must not be modified
// afterwards.
func (x *Index) Store(path string, set kgram.Set, stamp Stamp) {
	x.mu.Lock()
	x.entries[path] = entry{set: set, stamp: stamp}
	x.mu.Unlock()
	x.generation.Add(1)
}

// Replace swaps the entry of path only if path is still a key and reports
// whether it did. A key dropped by Clear, Delete or Retain while the new set
// was being computed stays dropped.
func (x *Index) Replace(path string, set kgram.Set, stamp Stamp) bool {
	x.mu.Lock()
	if _, ok := x.entries[path]; !ok {
		x.mu.Unlock()
		return false
	}
	x.entries[path] = entry{set: set, stamp: stamp}
	x.mu.Unlock()
	x.generation.Add(1)
	return true
}

// Delete removes the entry of path and reports whether it existed
func (x *Index) Delete(path string) bool {
	x.mu.Lock()
	_, ok := x.entries[path]
	delete(x.entries, path)
	x.mu.Unlock()
	if ok {
		x.generation.Add(1)
	}
	return ok
}

// Clear removes every entry
func (x *Index) Clear() {
	x.mu.Lock()
	x.entries = make(map[string]entry)
	x.mu.Unlock()
	x.generation.Add(1)
}

// Retain removes every entry whose path keep rejects and returns the removed
// paths in lexical order
func (x *Index) Retain(keep func(path string) bool) []string {
	var removed []string
	x.mu.Lock()
	for path := range x.entries {
		if !keep(path) {
			delete(x.entries, path)
			removed = append(removed, path)
		}
	}
	x.mu.Unlock()

	if len(removed) > 0 {
		x.generation.Add(1)
		sort.Strings(removed)
	}
	return removed
}

// Len returns the number of entries
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Keys returns all indexed paths in lexical order
func (x *Index) Keys() []string {
	x.mu.RLock()
	keys := make([]string, 0, len(x.entries))
	for k := range x.entries {
		keys = append(keys, k)
	}
	x.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Candidates returns, in lexical order, the paths whose set is a superset of
// query. An empty query set selects every entry.
func (x *Index) Candidates(query kgram.Set) []string {
	x.mu.RLock()
	var out []string
	for path, e := range x.entries {
		if e.set.ContainsAll(query) {
			out = append(out, path)
		}
	}
	x.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Generation increases on every mutation. Two equal readings mean the index
// did not change in between.
func (x *Index) Generation() uint64 {
	return x.generation.Load()
}
