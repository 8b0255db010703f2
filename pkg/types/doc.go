// Package types provides shared type definitions for substrfind.
//
// These types cross package boundaries between the scanner, indexer,
// searcher, engine and the MCP/CLI surfaces.
//
// # Core Types
//
// FileRecord is produced by directory enumeration and consumed by the indexer:
//
//	rec := types.FileRecord{
//	    Path:    "/home/me/notes/todo.txt",
//	    Size:    1024,
//	    ModTime: info.ModTime(),
//	}
//
// Match is one search hit. Offset is measured from the start of the file:
//
//	for _, m := range resp.Results {
//	    fmt.Printf("%s:%d\n", m.Path, m.Offset)
//	}
//
// ScanState tracks one scan through its phases:
//
//	Prepared -> ScanningDirectories -> IndexingFiles -> Finished -> Prepared
//
// # Errors
//
// Files that fail UTF-8 validation or exceed the k-gram cap are rejected with
// errors wrapping ErrAdmissionRejected. Root path problems wrap ErrInvalidRoot:
//
//	if errors.Is(err, types.ErrInvalidRoot) {
//	    // show the message to the user, the index is untouched
//	}
package types
