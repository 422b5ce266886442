// Package xorb implements the xorb binary container: an
// ordered run of compressed chunks, a self-describing CasObjectInfo
// footer, and a trailing 4-byte footer length so a reader can locate the
// footer from EOF without a separate index file.
//
// Layout: [chunk region] [CasObjectInfo footer] [u32 LE info_length].
//
// The chunk region is append-only; the footer is written once, at the
// end, split into three sections (main / hash / boundary) each with its
// own magic and version so a reader can validate and skip sections it
// does not need.
package xorb

import (
	"encoding/binary"

	"github.com/dustin/go-humanize"
	"github.com/xet-data/xetcas/compress"
	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/merkle"
	"github.com/xet-data/xetcas/xhash"
)

const (
	// MaxChunkSize bounds any single chunk's uncompressed size.
	MaxChunkSize = 128 * 1024
	// MaxXorbSize bounds a xorb's total serialized size.
	MaxXorbSize = 64 << 20
	// MaxXorbChunks bounds the number of chunks in a single xorb.
	MaxXorbChunks = 8192
	// TargetXorbChunks is the builder's soft target.
	TargetXorbChunks = 1024

	chunkHeaderSize = 8
	chunkVersion    = 0

	magicMain     = "XETBLOB"
	magicHash     = "XBLBHSH"
	magicBoundary = "XBLBBND"

	mainVersion     = 1
	hashVersion     = 0
	boundaryVersion = 1
)

// pendingChunk is one chunk queued into a Builder.
type pendingChunk struct {
	hash             xhash.Hash
	variant          compress.Variant
	compressed       []byte
	uncompressedSize uint32
}

// Builder assembles a xorb from compressed chunks in insertion order: chunk
// order within a xorb is the order chunks were added. A Builder is owned
// by exactly one assembly task at a time.
type Builder struct {
	chunks    []pendingChunk
	regionLen uint64
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// NumChunks reports how many chunks have been added so far.
func (b *Builder) NumChunks() int { return len(b.chunks) }

// SerializedSizeEstimate reports the builder's current running total of
// chunk-region bytes (headers + compressed payloads), not counting the
// footer. Callers use this to decide when to stop adding chunks and seal
// the xorb.
func (b *Builder) SerializedSizeEstimate() uint64 { return b.regionLen }

// AddChunk appends one already-compressed chunk. uncompressedSize is the
// chunk's raw (pre-compression) length; it is what xorb_hash and file_hash
// are computed over.
func (b *Builder) AddChunk(hash xhash.Hash, variant compress.Variant, compressed []byte, uncompressedSize int) error {
	if len(b.chunks) >= MaxXorbChunks {
		return xerr.NewConstraint("xorb.chunk_count", "xorb already holds MaxXorbChunks chunks")
	}
	if uncompressedSize <= 0 || uncompressedSize > MaxChunkSize {
		return xerr.NewConstraint("xorb.chunk_size", "uncompressed chunk size out of range")
	}
	if !variant.Valid() {
		return xerr.NewFormat("xorb", "unknown compression variant")
	}
	if len(compressed) == 0 || len(compressed) > MaxChunkSize {
		return xerr.NewConstraint("xorb.chunk_size", "compressed chunk size out of range")
	}

	added := uint64(chunkHeaderSize + len(compressed))
	if b.regionLen+added+minFooterSize(len(b.chunks)+1) > MaxXorbSize {
		return xerr.NewConstraint("xorb.size",
			"adding chunk would exceed MaxXorbSize ("+humanize.Bytes(MaxXorbSize)+")")
	}

	b.chunks = append(b.chunks, pendingChunk{
		hash:             hash,
		variant:          variant,
		compressed:       compressed,
		uncompressedSize: uint32(uncompressedSize),
	})
	b.regionLen += added
	return nil
}

// minFooterSize estimates the footer size for n chunks, used only to keep
// AddChunk's size check conservative (actual footer size is computed at
// Build time).
func minFooterSize(n int) uint64 {
	return uint64(40 + 12 + 32*n + 12 + 8*n + 28)
}

// Build serializes the xorb and returns its bytes plus its xorb_hash.
// Build fails if no chunks were added.
func (b *Builder) Build() ([]byte, xhash.Hash, error) {
	if len(b.chunks) == 0 {
		return nil, xhash.Hash{}, xerr.NewConstraint("xorb.chunk_count", "xorb must have at least one chunk")
	}

	region := make([]byte, 0, b.regionLen)
	chunkEnds := make([]uint32, len(b.chunks))
	uncompressedEnds := make([]uint32, len(b.chunks))
	pairs := make([]merkle.Pair, len(b.chunks))

	for i, c := range b.chunks {
		var hdr [chunkHeaderSize]byte
		hdr[0] = chunkVersion
		putU24LE(hdr[1:4], uint32(len(c.compressed)))
		hdr[4] = byte(c.variant)
		putU24LE(hdr[5:8], c.uncompressedSize)
		region = append(region, hdr[:]...)
		region = append(region, c.compressed...)

		chunkEnds[i] = uint32(len(region))
		if i == 0 {
			uncompressedEnds[i] = c.uncompressedSize
		} else {
			uncompressedEnds[i] = uncompressedEnds[i-1] + c.uncompressedSize
		}
		pairs[i] = merkle.Pair{Hash: c.hash, Size: uint64(c.uncompressedSize)}
	}

	xorbHash := merkle.Root(pairs)

	footer := buildFooter(xorbHash, b.chunks, chunkEnds, uncompressedEnds)

	out := make([]byte, 0, len(region)+len(footer)+4)
	out = append(out, region...)
	out = append(out, footer...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(footer)))
	out = append(out, lenBuf[:]...)

	if len(out) > MaxXorbSize {
		return nil, xhash.Hash{}, xerr.NewConstraint("xorb.size", "serialized xorb exceeds MaxXorbSize")
	}
	return out, xorbHash, nil
}

func buildFooter(xorbHash xhash.Hash, chunks []pendingChunk, chunkEnds, uncompressedEnds []uint32) []byte {
	n := len(chunks)
	var buf []byte

	// Main.
	buf = append(buf, magicMain...)
	buf = append(buf, mainVersion)
	buf = append(buf, xorbHash[:]...)

	// Hash section.
	hashSectionStart := len(buf)
	buf = append(buf, magicHash...)
	buf = append(buf, hashVersion)
	buf = appendU32(buf, uint32(n))
	for _, c := range chunks {
		buf = append(buf, c.hash[:]...)
	}

	// Boundary section.
	boundarySectionStart := len(buf)
	buf = append(buf, magicBoundary...)
	buf = append(buf, boundaryVersion)
	buf = appendU32(buf, uint32(n))
	for _, e := range chunkEnds {
		buf = appendU32(buf, e)
	}
	for _, e := range uncompressedEnds {
		buf = appendU32(buf, e)
	}

	footerEndSoFar := len(buf) + 4 + 4 + 4 + 16 // trailer fixed size
	hashesOffsetFromEnd := uint32(footerEndSoFar - hashSectionStart)
	boundariesOffsetFromEnd := uint32(footerEndSoFar - boundarySectionStart)

	// Trailer.
	buf = appendU32(buf, uint32(n))
	buf = appendU32(buf, hashesOffsetFromEnd)
	buf = appendU32(buf, boundariesOffsetFromEnd)
	buf = append(buf, make([]byte, 16)...)

	return buf
}

func putU24LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

func getU24LE(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
