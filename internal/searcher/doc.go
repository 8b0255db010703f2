// Package searcher finds literal substrings in the files of the k-gram index.
//
// A search runs in two steps:
//
//  1. Filter: the query is split into overlapping 3-byte grams and every file
//     whose indexed set contains all of them becomes a candidate. The filter
//     has no false negatives but ignores order, so it is not sufficient.
//  2. Verify: each candidate is streamed from disk and scanned with a KMP
//     matcher. The first occurrence is reported with its file offset.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(idx, &searcher.Config{Workers: 8}, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{Query: "hello"})
//	for _, m := range resp.Results {
//	    fmt.Printf("%s:%d\n", m.Path, m.Offset)
//	}
//
// Queries shorter than three bytes have no grams and turn every indexed file
// into a candidate.
//
// # Block Streaming
//
// Files are read in blocks (1 MiB by default). Before matching, every block is
// prefixed with the last len(query)-1 bytes of the previous buffer:
//
//	| ... block n ... |xx|  ->  |xx| ... block n+1 ... |
//
// so a match that starts near the end of one block and finishes in the next is
// still found, and its offset is counted from the start of the file.
//
// # Caching
//
// With SearchRequest.UseCache set, responses are kept in an LRU cache keyed by
// query. An entry is only served while the index generation it was computed at
// is current; any insert, swap or eviction in the index invalidates it.
package searcher
