// Package policy collects the tunables left as implementation choices:
// compression selection and the dedup fragmentation threshold. These
// are plain Go values and functional options — never loaded from a file
// or environment variable.
package policy

import (
	"github.com/xet-data/xetcas/compress"
)

const (
	// DefaultMinDedupRun is the minimum contiguous run of matched chunks,
	// in chunk count, before a dedup reference is accepted rather than
	// falling back to a fresh upload.
	DefaultMinDedupRun = 8
	// DefaultMinDedupBytes is the minimum contiguous run, in bytes, that
	// alternatively qualifies a dedup match.
	DefaultMinDedupBytes = 1 << 20 // 1 MiB
)

// CompressionSelector picks a compression variant for a chunk's raw bytes.
type CompressionSelector func(data []byte) (compress.Variant, []byte, error)

// DefaultCompressionSelector tries ByteGrouping4+LZ4, falls back to plain
// LZ4 if that didn't help, and falls back to None if neither variant
// shrinks the chunk.
func DefaultCompressionSelector(data []byte) (compress.Variant, []byte, error) {
	bg, err := compress.Compress(compress.ByteGrouping4LZ4, data)
	if err != nil {
		return 0, nil, err
	}
	plain, err := compress.Compress(compress.LZ4, data)
	if err != nil {
		return 0, nil, err
	}

	best := compress.None
	bestOut := data
	if len(plain) < len(bestOut) {
		best, bestOut = compress.LZ4, plain
	}
	if len(bg) < len(bestOut) {
		best, bestOut = compress.ByteGrouping4LZ4, bg
	}
	return best, bestOut, nil
}

// DedupPolicy bounds when a matched run of chunks is accepted as a dedup
// reference instead of falling back to a fresh upload.
type DedupPolicy struct {
	MinRunChunks int
	MinRunBytes  int
}

// DefaultDedupPolicy returns the recommended defaults.
func DefaultDedupPolicy() DedupPolicy {
	return DedupPolicy{MinRunChunks: DefaultMinDedupRun, MinRunBytes: DefaultMinDedupBytes}
}

// Qualifies reports whether a matched run of runChunks chunks spanning
// runBytes bytes meets either bound: a minimum contiguous run (e.g., 8
// chunks or 1 MiB), where either bound alone is sufficient.
func (p DedupPolicy) Qualifies(runChunks, runBytes int) bool {
	return runChunks >= p.MinRunChunks || runBytes >= p.MinRunBytes
}

// Option configures a DedupPolicy.
type Option func(*DedupPolicy)

// WithMinDedupRun overrides the minimum chunk-count run length.
func WithMinDedupRun(n int) Option { return func(p *DedupPolicy) { p.MinRunChunks = n } }

// WithMinDedupBytes overrides the minimum byte-length run.
func WithMinDedupBytes(n int) Option { return func(p *DedupPolicy) { p.MinRunBytes = n } }

// NewDedupPolicy builds a DedupPolicy from the defaults plus options.
func NewDedupPolicy(opts ...Option) DedupPolicy {
	p := DefaultDedupPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
