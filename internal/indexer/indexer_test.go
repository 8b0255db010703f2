package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/substrfind/internal/index"
	"github.com/dshills/substrfind/internal/kgram"
	"github.com/dshills/substrfind/internal/scanner"
	"github.com/dshills/substrfind/pkg/types"
)

// setupTree writes files (relative path -> content) into a temp dir and
// returns the root and the scanned records
func setupTree(t *testing.T, files map[string][]byte) (string, []types.FileRecord) {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, content, 0644))
	}

	records, err := scanner.Scan(root, scanner.Options{})
	require.NoError(t, err)
	return root, records
}

func TestIndexFiles_Admission(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"a.txt":     []byte("hello world"),
		"b.txt":     []byte("goodbye"),
		"c.bin":     {0x00, 0xff, 0xfe, 0x80, 0x81},
		"tiny.txt":  []byte("hi"),
		"sub/d.txt": []byte("nested file"),
		"empty.txt": {},
	})

	idx := index.New()
	ix := New(idx, &Config{Workers: 4}, nil)

	stats, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesRejected)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 0, stats.FilesSkipped)

	assert.True(t, idx.Has(filepath.Join(root, "a.txt")))
	assert.True(t, idx.Has(filepath.Join(root, "sub", "d.txt")))
	assert.False(t, idx.Has(filepath.Join(root, "c.bin")), "binary file must not be indexed")

	set, ok := idx.Get(filepath.Join(root, "tiny.txt"))
	require.True(t, ok, "files shorter than k are indexed with an empty set")
	assert.Equal(t, 0, set.Len())

	set, _ = idx.Get(filepath.Join(root, "a.txt"))
	assert.True(t, set.Equal(kgram.FromString("hello world")))
}

func TestIndexFiles_CapExcludesValidText(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"wide.txt":   []byte("abcdefgh hello"), // far more than 5 distinct grams
		"narrow.txt": []byte("abab"),
	})

	idx := index.New()
	ix := New(idx, &Config{GramCap: 5}, nil)

	stats, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesRejected)
	assert.False(t, idx.Has(filepath.Join(root, "wide.txt")))
	assert.True(t, idx.Has(filepath.Join(root, "narrow.txt")))
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"a.txt": []byte("original"),
		"b.txt": []byte("other"),
	})
	path := filepath.Join(root, "a.txt")

	idx := index.New()
	ix := New(idx, nil, nil)
	_, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	// An entry from the same file version is left alone
	sentinel := kgram.FromString("sentinel")
	stamp, ok := idx.Stamp(path)
	require.True(t, ok)
	require.True(t, idx.Replace(path, sentinel, stamp))

	stats, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesIndexed)

	set, _ := idx.Get(path)
	assert.True(t, set.Equal(sentinel), "unchanged entry must be left alone")
}

func TestIndexFiles_RescanPicksUpEdits(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"edit.txt":  []byte("hello world"),
		"same.txt":  []byte("untouched"),
		"spoil.txt": []byte("clean text"),
	})
	edit := filepath.Join(root, "edit.txt")
	spoil := filepath.Join(root, "spoil.txt")

	idx := index.New()
	ix := New(idx, nil, nil)
	_, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(edit, []byte("hello world zebra"), 0644))
	require.NoError(t, os.Chtimes(edit, later, later))
	require.NoError(t, os.WriteFile(spoil, []byte{0x00, 0xff, 0xfe, 0x80, 0x81}, 0644))
	require.NoError(t, os.Chtimes(spoil, later, later))

	records, err = scanner.Scan(root, scanner.Options{})
	require.NoError(t, err)
	stats, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 1, stats.FilesRejected)
	assert.Equal(t, 1, stats.FilesEvicted)

	set, ok := idx.Get(edit)
	require.True(t, ok)
	assert.True(t, set.ContainsAll(kgram.FromString("zebra")))
	assert.False(t, idx.Has(spoil), "a file that became binary is evicted")
}

func TestIndexFiles_UnreadableRecordIsNotOpened(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{"a.txt": []byte("readable")})
	path := filepath.Join(root, "a.txt")
	require.Len(t, records, 1)

	idx := index.New()
	idx.Put(path, kgram.FromString("stale"))

	records[0].Readable = false
	stats, err := New(idx, nil, nil).IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesEvicted)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "permission denied")
	assert.False(t, idx.Has(path))
}

func TestRetain(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"keep.txt": []byte("keep me"),
		"gone.txt": []byte("delete me"),
	})

	idx := index.New()
	ix := New(idx, nil, nil)
	_, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	gone := filepath.Join(root, "gone.txt")
	require.NoError(t, os.Remove(gone))
	records, err = scanner.Scan(root, scanner.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{gone}, ix.Retain(records))
	assert.Equal(t, []string{filepath.Join(root, "keep.txt")}, idx.Keys())
	assert.Empty(t, ix.Retain(records))
}

func TestIndexFiles_UnreadableFileIsAbsorbed(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"keep.txt": []byte("still here"),
		"gone.txt": []byte("about to vanish"),
	})
	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))

	idx := index.New()
	stats, err := New(idx, nil, nil).IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesIndexed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "gone.txt")
	assert.Equal(t, []string{filepath.Join(root, "keep.txt")}, idx.Keys())
}

func TestIndexFiles_Progress(t *testing.T) {
	files := map[string][]byte{}
	for _, name := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		files[name+".txt"] = []byte("content " + name)
	}
	_, records := setupTree(t, files)

	var mu sync.Mutex
	var seen []Progress
	_, err := New(index.New(), &Config{Workers: 3}, nil).IndexFiles(context.Background(), records, func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, seen, len(records))
	for i, p := range seen {
		assert.Equal(t, i+1, p.Processed, "progress is reported in order")
	}
	last := seen[len(seen)-1]
	assert.Equal(t, 100, last.Percent())
	assert.Equal(t, 8, last.Indexed)
}

func TestIndexFiles_CancelledContext(t *testing.T) {
	_, records := setupTree(t, map[string][]byte{"a.txt": []byte("aaa"), "b.txt": []byte("bbb")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := index.New()
	stats, err := New(idx, nil, nil).IndexFiles(ctx, records, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Equal(t, 0, idx.Len())
}

func TestAdmit(t *testing.T) {
	root, _ := setupTree(t, map[string][]byte{
		"ok.txt":  []byte("fine text"),
		"bad.bin": {0xc3, 0x28},
	})
	ix := New(index.New(), nil, nil)

	set, err := ix.Admit(filepath.Join(root, "ok.txt"))
	require.NoError(t, err)
	assert.True(t, set.Equal(kgram.FromString("fine text")))

	_, err = ix.Admit(filepath.Join(root, "bad.bin"))
	assert.ErrorIs(t, err, types.ErrAdmissionRejected)

	_, err = ix.Admit(filepath.Join(root, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, types.ErrAdmissionRejected)
}

func TestReindex(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{
		"a.txt": []byte("before the edit"),
	})
	path := filepath.Join(root, "a.txt")

	idx := index.New()
	ix := New(idx, &Config{GramCap: 50}, nil)
	_, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	t.Run("updated in place", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("after the edit"), 0644))

		outcome, err := ix.Reindex(path)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)

		set, ok := idx.Get(path)
		require.True(t, ok)
		assert.True(t, set.ContainsAll(kgram.FromString("after")))
		assert.False(t, set.ContainsAll(kgram.FromString("before")), "stale grams must not linger")
	})

	t.Run("unchanged file is idempotent", func(t *testing.T) {
		before, _ := idx.Get(path)
		_, err := ix.Reindex(path)
		require.NoError(t, err)
		after, _ := idx.Get(path)
		assert.Equal(t, before.Grams(), after.Grams())
	})

	t.Run("over the cap is evicted", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"), 0644))

		outcome, err := ix.Reindex(path)
		assert.Equal(t, OutcomeEvicted, outcome)
		assert.ErrorIs(t, err, kgram.ErrCapExceeded)
		assert.False(t, idx.Has(path))
	})

	t.Run("unknown path is ignored", func(t *testing.T) {
		outcome, err := ix.Reindex(path)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
	})

	t.Run("deleted file is evicted", func(t *testing.T) {
		idx.Put(path, kgram.Set{})
		require.NoError(t, os.Remove(path))

		outcome, err := ix.Reindex(path)
		assert.Equal(t, OutcomeEvicted, outcome)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.False(t, idx.Has(path))
	})
}

func TestReindex_DoesNotRestoreClearedKey(t *testing.T) {
	root, records := setupTree(t, map[string][]byte{"a.txt": []byte("old root file")})
	path := filepath.Join(root, "a.txt")

	idx := index.New()
	ix := New(idx, nil, nil)
	_, err := ix.IndexFiles(context.Background(), records, nil)
	require.NoError(t, err)

	// Hold the key lock so Reindex blocks after it has been scheduled, then
	// clear the index as a scan of another root would
	unlock := idx.LockKey(path)
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := ix.Reindex(path)
		done <- outcome
	}()
	idx.Clear()
	unlock()

	assert.Equal(t, OutcomeIgnored, <-done)
	assert.False(t, idx.Has(path), "a cleared key must stay cleared")
}

func TestReplaceAfterClearDuringRead(t *testing.T) {
	// Reindex passed the key check, then the index was cleared before the
	// fresh set was installed
	idx := index.New()
	idx.Put("/old/x", kgram.FromString("old"))
	idx.Clear()

	assert.False(t, idx.Replace("/old/x", kgram.FromString("new"), index.Stamp{Size: 3, ModTime: time.Now()}))
	assert.Equal(t, 0, idx.Len())
}

func TestRemove(t *testing.T) {
	idx := index.New()
	idx.Put("/x", kgram.Set{})
	ix := New(idx, nil, nil)

	assert.True(t, ix.Remove("/x"))
	assert.False(t, ix.Remove("/x"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "updated", OutcomeUpdated.String())
	assert.Equal(t, "evicted", OutcomeEvicted.String())
	assert.Equal(t, "ignored", OutcomeIgnored.String())
}
