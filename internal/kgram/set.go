package kgram

import (
	"bytes"
	"sort"
)

// K is the k-gram length in bytes
const K = 3

// KGram is a run of exactly K consecutive bytes
type KGram [K]byte

func (g KGram) String() string {
	return string(g[:])
}

// Set is a set of k-grams. A Set is not modified once it has been returned
// by Compute or FromString, so it can be shared between goroutines.
type Set map[KGram]struct{}

// Len returns the set cardinality
func (s Set) Len() int {
	return len(s)
}

// Contains reports whether g is in the set
func (s Set) Contains(g KGram) bool {
	_, ok := s[g]
	return ok
}

// ContainsAll reports whether s is a superset of other.
// Every set contains the empty set.
func (s Set) ContainsAll(other Set) bool {
	if len(other) > len(s) {
		return false
	}
	for g := range other {
		if _, ok := s[g]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same k-grams
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

// Grams returns the k-grams in byte order
func (s Set) Grams() []KGram {
	grams := make([]KGram, 0, len(s))
	for g := range s {
		grams = append(grams, g)
	}
	sort.Slice(grams, func(i, j int) bool {
		return bytes.Compare(grams[i][:], grams[j][:]) < 0
	})
	return grams
}

// FromString returns the k-gram set of a query. No cap and no UTF-8 check is
// applied; strings shorter than K yield an empty set.
func FromString(s string) Set {
	set := make(Set)
	for i := 0; i+K <= len(s); i++ {
		var g KGram
		copy(g[:], s[i:i+K])
		set[g] = struct{}{}
	}
	return set
}
