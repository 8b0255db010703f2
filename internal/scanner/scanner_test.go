package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/substrfind/pkg/types"
)

// writeTree creates files (relative path -> content) under root
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func paths(records []types.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

func TestScan_FindsAllRegularFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.txt":          "b",
		"a.txt":          "a",
		"sub/c.txt":      "c",
		"sub/deep/d.txt": "d",
		"other/e.txt":    "eeee",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	records, err := Scan(root, Options{})
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "other", "e.txt"),
		filepath.Join(root, "sub", "c.txt"),
		filepath.Join(root, "sub", "deep", "d.txt"),
	}
	assert.Equal(t, want, paths(records))

	for _, r := range records {
		assert.True(t, filepath.IsAbs(r.Path))
		assert.True(t, r.Readable)
		assert.False(t, r.ModTime.IsZero())
	}
	assert.Equal(t, int64(4), records[2].Size)
}

func TestScan_ReadableFromPermissions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"open.txt": "o", "locked.txt": "l"})
	require.NoError(t, os.Chmod(filepath.Join(root, "locked.txt"), 0))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(root, "locked.txt"), 0644) })

	records, err := Scan(root, Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, filepath.Join(root, "locked.txt"), records[0].Path)
	assert.False(t, records[0].Readable)
	assert.True(t, records[1].Readable)
}

func TestScan_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"z/1.txt": "1", "y/2.txt": "2", "x/3.txt": "3", "w.txt": "w",
	})

	first, err := Scan(root, Options{})
	require.NoError(t, err)
	second, err := Scan(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, paths(first), paths(second))
}

func TestScan_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, root, map[string]string{"real.txt": "real"})
	writeTree(t, outside, map[string]string{"secret.txt": "secret"})

	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linkdir")))

	records, err := Scan(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "real.txt")}, paths(records))
}

func TestScan_UnreadableDirectoryIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok.txt":        "ok",
		"locked/in.txt": "hidden",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	var skipped []string
	records, err := Scan(root, Options{
		OnSkip: func(dir string, err error) { skipped = append(skipped, dir) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "ok.txt")}, paths(records))
	assert.Equal(t, []string{locked}, skipped)
}

func TestScan_ReportsDirectoryProgress(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "a", "b": "b", "c/d": "d"})

	var last = map[string][2]int{}
	_, err := Scan(root, Options{
		OnDirectory: func(dir string, done, total int) { last[dir] = [2]int{done, total} },
	})
	require.NoError(t, err)

	assert.Equal(t, [2]int{3, 3}, last[root])
	assert.Equal(t, [2]int{1, 1}, last[filepath.Join(root, "c")])
}

func TestScan_InvalidRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"file.txt": "x"})

	tests := []struct {
		name   string
		path   string
		detail error
	}{
		{"empty", "", types.ErrPathRequired},
		{"missing", filepath.Join(root, "nope"), types.ErrPathNotFound},
		{"file", filepath.Join(root, "file.txt"), types.ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.path, Options{})
			assert.ErrorIs(t, err, types.ErrInvalidRoot)
			assert.ErrorIs(t, err, tt.detail)
		})
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.txt":      "bb",
		"a.txt":      "a",
		"zdir/x.txt": "x",
		"adir/y.txt": "y",
	})

	rows, err := List(root)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	names := []string{rows[0].Name, rows[1].Name, rows[2].Name, rows[3].Name}
	assert.Equal(t, []string{"adir", "zdir", "a.txt", "b.txt"}, names)

	assert.Equal(t, types.KindDirectory, rows[0].Kind)
	assert.Equal(t, int64(0), rows[0].Size)
	assert.Equal(t, types.KindFile, rows[3].Kind)
	assert.Equal(t, int64(2), rows[3].Size)
	assert.Equal(t, filepath.Join(root, "b.txt"), rows[3].Path)

	_, err = List(filepath.Join(root, "a.txt"))
	assert.ErrorIs(t, err, types.ErrNotDirectory)
}
