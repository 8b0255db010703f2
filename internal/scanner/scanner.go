// Package scanner enumerates the regular files below a root directory.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/substrfind/pkg/types"
)

// Options configures Scan. All callbacks are optional.
type Options struct {
	// OnDirectory is called after each entry of a directory has been examined.
	OnDirectory func(dir string, done, total int)
	// OnSkip is called for every directory that could not be read.
	OnSkip func(dir string, err error)
}

// ValidateRoot checks that root is an existing, readable directory and
// returns its absolute, cleaned form.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: %w", types.ErrInvalidRoot, types.ErrPathRequired)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidRoot, err)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s: %w", types.ErrInvalidRoot, abs, types.ErrPathNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", types.ErrInvalidRoot, abs, types.ErrPathNotReadable)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s: %w", types.ErrInvalidRoot, abs, types.ErrNotDirectory)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", types.ErrInvalidRoot, abs, types.ErrPathNotReadable)
	}
	_ = f.Close()

	return abs, nil
}

// Scan returns a record for every regular file reachable from root.
//
// Directories are expanded from an explicit FIFO queue rather than by
// recursion. Symbolic links are never followed or reported. Directories below
// the root that cannot be read are treated as empty. Records come out in
// breadth-first order, lexical within each directory.
func Scan(root string, opts Options) ([]types.FileRecord, error) {
	abs, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	var records []types.FileRecord
	queue := []string{abs}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if opts.OnSkip != nil {
				opts.OnSkip(dir, err)
			}
			// ReadDir may still return the entries read before the error
			if len(entries) == 0 {
				continue
			}
		}

		for i, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			mode := entry.Type()

			switch {
			case mode&fs.ModeSymlink != 0:
				// skipped
			case entry.IsDir():
				queue = append(queue, path)
			case mode.IsRegular():
				if rec, ok := newRecord(path, entry); ok {
					records = append(records, rec)
				}
			}

			if opts.OnDirectory != nil {
				opts.OnDirectory(dir, i+1, len(entries))
			}
		}
	}

	return records, nil
}

func newRecord(path string, entry fs.DirEntry) (types.FileRecord, bool) {
	info, err := entry.Info()
	if err != nil {
		// Removed between ReadDir and Info
		return types.FileRecord{}, false
	}

	return types.FileRecord{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Readable: info.Mode().Perm()&0444 != 0,
	}, true
}

// List returns the immediate children of dir: directories first, then files,
// then everything else, each group in lexical order. Symbolic links are
// reported with the kind of their target. The Indexed flag is left unset.
func List(dir string) ([]types.DirEntry, error) {
	abs, err := ValidateRoot(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrInvalidRoot, abs, types.ErrPathNotReadable)
	}

	rows := make([]types.DirEntry, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(abs, entry.Name())
		row := types.DirEntry{
			Name: entry.Name(),
			Path: path,
			Kind: types.KindOther,
		}

		info, err := os.Stat(path)
		if err != nil {
			// Dangling link or vanished entry
			rows = append(rows, row)
			continue
		}

		row.ModTime = info.ModTime()
		switch {
		case info.IsDir():
			row.Kind = types.KindDirectory
		case info.Mode().IsRegular():
			row.Kind = types.KindFile
			row.Size = info.Size()
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return kindRank(rows[i].Kind) < kindRank(rows[j].Kind)
	})

	return rows, nil
}

func kindRank(k types.EntryKind) int {
	switch k {
	case types.KindDirectory:
		return 0
	case types.KindFile:
		return 1
	default:
		return 2
	}
}
