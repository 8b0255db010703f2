// Package kgram computes bounded sets of overlapping byte k-grams, the
// fingerprint used to pre-filter files before exact matching.
package kgram

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/dshills/substrfind/pkg/types"
)

const (
	// DefaultCap is the largest k-gram set a file may produce and still be indexed
	DefaultCap = 20000

	// DefaultBlockSize is the read size used while streaming a file
	DefaultBlockSize = 1024 * 1024
)

var (
	// ErrInvalidUTF8 rejects content that is not well-formed UTF-8
	ErrInvalidUTF8 = fmt.Errorf("%w: invalid UTF-8", types.ErrAdmissionRejected)
	// ErrCapExceeded rejects content whose k-gram set is larger than the cap
	ErrCapExceeded = fmt.Errorf("%w: k-gram cap exceeded", types.ErrAdmissionRejected)
)

// Options controls Compute
type Options struct {
	Cap          int  // Maximum set size, <= 0 means unlimited
	BlockSize    int  // Read size (default: DefaultBlockSize)
	ValidateUTF8 bool // Reject input that is not valid UTF-8
}

// DefaultOptions returns the admission rules used for indexing files
func DefaultOptions() Options {
	return Options{
		Cap:          DefaultCap,
		BlockSize:    DefaultBlockSize,
		ValidateUTF8: true,
	}
}

// window is a ring buffer holding the last K bytes of the stream
type window struct {
	buf [K]byte
	pos int // total bytes pushed
}

func (w *window) push(b byte) {
	w.buf[w.pos%K] = b
	w.pos++
}

func (w *window) full() bool {
	return w.pos >= K
}

// gram returns the window contents oldest byte first
func (w *window) gram() KGram {
	var g KGram
	start := w.pos % K
	for i := 0; i < K; i++ {
		g[i] = w.buf[(start+i)%K]
	}
	return g
}

// sourceReader remembers the last error of the underlying reader so a
// transform failure can be told apart from an I/O failure.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// Compute streams r and returns its k-gram set.
//
// The stream is rejected with ErrInvalidUTF8 when validation is enabled and a
// malformed sequence is found anywhere, including a code point cut short by
// EOF. It is rejected with ErrCapExceeded as soon as the set grows past
// opts.Cap; the set only grows, so stopping early gives the same decision as
// checking at end of stream. Read errors are returned wrapped.
func Compute(r io.Reader, opts Options) (Set, error) {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	src := &sourceReader{r: r}
	var in io.Reader = src
	if opts.ValidateUTF8 {
		in = transform.NewReader(src, encoding.UTF8Validator)
	}

	set := make(Set)
	var w window
	buf := make([]byte, blockSize)

	for {
		n, err := in.Read(buf)
		for _, b := range buf[:n] {
			w.push(b)
			if !w.full() {
				continue
			}
			set[w.gram()] = struct{}{}
			if opts.Cap > 0 && len(set) > opts.Cap {
				return nil, ErrCapExceeded
			}
		}

		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			if src.err != nil {
				return nil, fmt.Errorf("read failed: %w", src.err)
			}
			if opts.ValidateUTF8 {
				return nil, ErrInvalidUTF8
			}
			return nil, fmt.Errorf("read failed: %w", err)
		}
	}
}
