// Package matcher implements exact substring search with a precomputed
// failure function (Knuth-Morris-Pratt).
package matcher

// NotFound is returned by Search when the pattern does not occur
const NotFound = -1

// FailureTable computes the failure function of pattern: table[i] is the length
// of the longest proper prefix of pattern[:i+1] that is also its suffix.
func FailureTable(pattern []byte) []int {
	table := make([]int, len(pattern))
	if len(pattern) == 0 {
		return table
	}

	cand := 0
	for i := 1; i < len(pattern); i++ {
		for cand > 0 && pattern[cand] != pattern[i] {
			cand = table[cand-1]
		}
		if pattern[cand] == pattern[i] {
			cand++
		}
		table[i] = cand
	}
	return table
}

// Search returns the offset of the first occurrence of pattern in haystack,
// or NotFound. table must be FailureTable(pattern).
func Search(haystack, pattern []byte, table []int) int {
	m := len(pattern)
	if m == 0 {
		return 0
	}
	if m > len(haystack) {
		return NotFound
	}

	j := 0
	for i := 0; i < len(haystack); i++ {
		for j > 0 && pattern[j] != haystack[i] {
			j = table[j-1]
		}
		if pattern[j] == haystack[i] {
			j++
		}
		if j == m {
			return i - m + 1
		}
	}
	return NotFound
}

// Matcher binds a pattern to its failure table so it can be reused across
// many haystacks. A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	pattern []byte
	table   []int
}

// New creates a Matcher for pattern. The pattern is copied.
func New(pattern []byte) *Matcher {
	p := append([]byte(nil), pattern...)
	return &Matcher{
		pattern: p,
		table:   FailureTable(p),
	}
}

// NewString creates a Matcher for a string pattern
func NewString(pattern string) *Matcher {
	return New([]byte(pattern))
}

// Index returns the offset of the first occurrence in haystack, or NotFound
func (m *Matcher) Index(haystack []byte) int {
	return Search(haystack, m.pattern, m.table)
}

// Len returns the pattern length in bytes
func (m *Matcher) Len() int {
	return len(m.pattern)
}

// Pattern returns a copy of the pattern
func (m *Matcher) Pattern() []byte {
	return append([]byte(nil), m.pattern...)
}
