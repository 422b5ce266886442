// Package merkle implements the aggregated hash tree: a
// variable fan-out (2-9, mean 4) Merkle reducer used to compute both xorb
// hashes and file hashes from an ordered sequence of (hash, size) pairs.
// The cut-point rule and the textual merge buffer are both part of the
// on-wire contract and must be reproduced exactly.
package merkle

import (
	"fmt"
	"strconv"

	"github.com/xet-data/xetcas/xhash"
)

// Pair is one (hash, size) leaf or internal node in the tree.
type Pair struct {
	Hash xhash.Hash
	Size uint64
}

// maxChildren bounds the cut-point search window; meanScan is the modulus
// of the cut predicate, giving a mean fan-out of 4.
const (
	maxChildren = 9
	meanScan    = 4
)

// CutPoint returns how many of the leading pairs merge into the next
// parent node. It returns 0 only for an empty input, and never returns
// more than min(maxChildren, len(pairs)).
func CutPoint(pairs []Pair) int {
	n := len(pairs)
	if n <= 2 {
		return n
	}
	end := n
	if end > maxChildren {
		end = maxChildren
	}
	for i := 2; i < end; i++ {
		if pairs[i].Hash.Prefix()%meanScan == 0 {
			return i + 1
		}
	}
	return end
}

// Merge combines a run of pairs into a single parent pair: the parent hash
// is H_INTERNAL over the textual buffer "{hash_string} : {size}\n" for
// each child in order, and the parent size is the sum of the children's
// sizes.
func Merge(run []Pair) Pair {
	var buf []byte
	var total uint64
	for _, p := range run {
		buf = append(buf, p.Hash.String()...)
		buf = append(buf, " : "...)
		buf = strconv.AppendUint(buf, p.Size, 10)
		buf = append(buf, '\n')
		total += p.Size
	}
	return Pair{Hash: xhash.InternalNode(buf), Size: total}
}

// collapse runs one full level of the tree: repeatedly cut and merge until
// the input is consumed.
func collapse(level []Pair) []Pair {
	out := make([]Pair, 0, (len(level)+1)/2)
	for len(level) > 0 {
		n := CutPoint(level)
		out = append(out, Merge(level[:n]))
		level = level[n:]
	}
	return out
}

// Root collapses pairs down to a single root hash. An empty input yields
// the all-zero sentinel.
func Root(pairs []Pair) xhash.Hash {
	if len(pairs) == 0 {
		return xhash.ZeroHash
	}
	level := pairs
	for len(level) > 1 {
		level = collapse(level)
	}
	if len(level) != 1 {
		panic(fmt.Sprintf("merkle: collapse invariant violated: got %d nodes", len(level)))
	}
	return level[0].Hash
}
