package searcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/substrfind/internal/index"
	"github.com/dshills/substrfind/internal/kgram"
	"github.com/dshills/substrfind/internal/matcher"
	"github.com/dshills/substrfind/pkg/types"
)

const (
	// DefaultCacheSize is the number of queries kept in the result cache
	DefaultCacheSize = 256
)

// Config contains configuration for the searcher
type Config struct {
	Workers   int // Concurrent verification tasks (default: runtime.NumCPU())
	BlockSize int // Read size while verifying (default: kgram.DefaultBlockSize)
	CacheSize int // Result cache entries, < 0 disables the cache (default: DefaultCacheSize)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	UseCache bool // Whether to use the result cache
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results    []types.Match // Sorted by path
	Candidates int           // Files that passed the k-gram filter
	Verified   int           // Candidates that were read to a verdict
	Duration   time.Duration
	CacheHit   bool
}

// cacheEntry is a cached response valid for one index generation
type cacheEntry struct {
	response   *SearchResponse
	generation uint64
}

// Searcher finds literal substrings in indexed files
type Searcher struct {
	index     *index.Index
	logger    *slog.Logger
	workers   int
	blockSize int

	cache   *lru.Cache[string, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher over idx. A nil config selects defaults.
func NewSearcher(idx *index.Index, config *Config, logger *slog.Logger) *Searcher {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Searcher{
		index:     idx,
		logger:    logger.With("component", "searcher"),
		workers:   config.Workers,
		blockSize: config.BlockSize,
	}
	if s.workers <= 0 {
		s.workers = runtime.NumCPU()
	}
	if s.blockSize <= 0 {
		s.blockSize = kgram.DefaultBlockSize
	}

	cacheSize := config.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, *cacheEntry](cacheSize)
		if err != nil {
			// This should never happen with a positive size
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}

	return s
}

// Search finds the first occurrence of req.Query in every indexed file that
// contains it.
//
// Files are pre-filtered by k-gram containment, then each candidate is read
// and verified exactly. Queries shorter than k bytes have no k-grams, so every
// indexed file is a candidate. Results reflect the entries committed to the
// index when the call starts.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if req.Query == "" {
		return nil, types.ErrEmptyQuery
	}

	generation := s.index.Generation()
	if req.UseCache {
		if cached := s.checkCache(req.Query, generation); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	candidates := s.index.Candidates(kgram.FromString(req.Query))
	results, verified, err := s.verify(ctx, candidates, matcher.NewString(req.Query))
	if err != nil {
		return nil, err
	}

	response := &SearchResponse{
		Results:    results,
		Candidates: len(candidates),
		Verified:   verified,
		Duration:   time.Since(startTime),
	}

	if req.UseCache {
		s.storeInCache(req.Query, generation, response)
	}

	return response, nil
}

// verify runs the matcher over every candidate with bounded parallelism and
// returns the confirmed matches sorted by path along with the number of
// candidates that could be read
func (s *Searcher) verify(ctx context.Context, candidates []string, m *matcher.Matcher) ([]types.Match, int, error) {
	found := make([]*types.Match, len(candidates))
	var verified atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			offset, err := FindInFile(path, m, s.blockSize)
			if err != nil {
				// Vanished or unreadable since indexing; the watcher will evict it
				s.logger.Debug("verification failed", "path", path, "error", err)
				return nil
			}
			verified.Add(1)
			if offset != matcher.NotFound {
				found[i] = &types.Match{Path: path, Offset: offset}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	results := make([]types.Match, 0, len(candidates))
	for _, m := range found {
		if m != nil {
			results = append(results, *m)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, int(verified.Load()), nil
}

// FindInFile streams the file at path in blocks of blockSize bytes and returns
// the file offset of the first occurrence of the matcher's pattern, or
// matcher.NotFound.
//
// Each block is preceded by the last len(pattern)-1 bytes of the previous
// buffer, so an occurrence that straddles a block edge lies entirely inside
// the extended buffer.
func FindInFile(path string, m *matcher.Matcher, blockSize int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return matcher.NotFound, err
	}
	defer func() { _ = f.Close() }()

	return Find(f, m, blockSize)
}

// Find is FindInFile over an arbitrary reader
func Find(r io.Reader, m *matcher.Matcher, blockSize int) (int64, error) {
	if blockSize <= 0 {
		blockSize = kgram.DefaultBlockSize
	}

	carry := m.Len() - 1
	if carry < 0 {
		carry = 0
	}

	buf := make([]byte, carry+blockSize)
	n := 0         // valid bytes in buf
	var base int64 // file offset of buf[0]

	for {
		read, err := io.ReadFull(r, buf[n:n+blockSize])
		n += read

		if read > 0 {
			if i := m.Index(buf[:n]); i != matcher.NotFound {
				return base + int64(i), nil
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return matcher.NotFound, nil
		}
		if err != nil {
			return matcher.NotFound, err
		}

		keep := carry
		if keep > n {
			keep = n
		}
		copy(buf, buf[n-keep:n])
		base += int64(n - keep)
		n = keep
	}
}

// checkCache returns a copy of the cached response for query if it was
// computed at the current index generation
func (s *Searcher) checkCache(query string, generation uint64) *SearchResponse {
	if s.cache == nil {
		return nil
	}

	s.cacheMu.RLock()
	entry, found := s.cache.Get(query)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if entry.generation != generation {
		s.cacheMu.RUnlock()

		// Stale entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(query)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a copy of response for query
func (s *Searcher) storeInCache(query string, generation uint64, response *SearchResponse) {
	if s.cache == nil {
		return
	}

	entry := &cacheEntry{
		response:   copySearchResponse(response),
		generation: generation,
	}

	s.cacheMu.Lock()
	s.cache.Add(query, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.Match, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}
