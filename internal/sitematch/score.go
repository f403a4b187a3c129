package sitematch

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Similarity is the outcome of comparing two tokens.
type Similarity struct {
	// Ratio is 2*M/(len(a)+len(b)) where M is the number of matched
	// characters across all matching blocks. Two empty tokens score 1.
	Ratio float64
	// FirstBlockSizeMinusOne is the size of the leftmost matching block
	// minus one, or -1 when nothing matches.
	FirstBlockSizeMinusOne int
}

// Score compares a and b with Ratcliff/Obershelp matching: the longest
// common block is found first and the unmatched remainders on each side are
// matched recursively. Blocks are reported in left-to-right order.
func Score(a, b string) Similarity {
	m := difflib.NewMatcher(chars(a), chars(b))
	// The block list always ends with a zero-size sentinel, so it is never empty.
	blocks := m.GetMatchingBlocks()
	return Similarity{
		Ratio:                  m.Ratio(),
		FirstBlockSizeMinusOne: blocks[0].Size - 1,
	}
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
