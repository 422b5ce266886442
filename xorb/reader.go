package xorb

import (
	"encoding/binary"

	"github.com/xet-data/xetcas/compress"
	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/merkle"
	"github.com/xet-data/xetcas/xhash"
)

// chunkRecord is one parsed chunk header plus its region offsets.
type chunkRecord struct {
	headerOffset     uint32 // offset of this chunk's 8-byte header within the region
	compressedSize   uint32
	variant          compress.Variant
	uncompressedSize uint32
	hash             xhash.Hash
}

// Object is a parsed, validated xorb.
type Object struct {
	region  []byte
	hash    xhash.Hash
	records []chunkRecord
}

// Hash returns the xorb_hash from the footer.
func (o *Object) Hash() xhash.Hash { return o.hash }

// NumChunks returns the number of chunks in the xorb.
func (o *Object) NumChunks() int { return len(o.records) }

// ChunkHash returns the i-th chunk's hash.
func (o *Object) ChunkHash(i int) xhash.Hash { return o.records[i].hash }

// Decompress returns chunk i's raw (uncompressed) bytes.
func (o *Object) Decompress(i int) ([]byte, error) {
	r := o.records[i]
	payload := o.region[r.headerOffset+chunkHeaderSize : r.headerOffset+chunkHeaderSize+r.compressedSize]
	return compress.Decompress(r.variant, payload, int(r.uncompressedSize))
}

// DecompressRange decompresses and concatenates chunks [start, end), the
// primitive a reconstruction term's chunk range is resolved against once
// the whole xorb (not just a fetched byte range) is available locally.
func (o *Object) DecompressRange(start, end int) ([]byte, error) {
	if start < 0 || end > len(o.records) || start >= end {
		return nil, xerr.NewConstraint("xorb.range", "chunk range out of bounds")
	}
	var out []byte
	for i := start; i < end; i++ {
		b, err := o.Decompress(i)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// DecodeChunkRun decodes exactly numChunks consecutive chunk records
// starting at region[0] and returns their decompressed bytes concatenated
// in order, plus each chunk's content hash recomputed from its
// decompressed bytes. Unlike Parse, it needs no footer: it is the
// primitive the reconstruction engine uses against a raw byte range
// fetched directly from storage, where chunk headers are self-delimiting
// and sequential parsing alone recovers each chunk's boundaries — and
// where, with no footer hash section to read, chunk_hash must be
// rederived from content rather than looked up.
func DecodeChunkRun(region []byte, numChunks int) ([]byte, []xhash.Hash, error) {
	var out []byte
	hashes := make([]xhash.Hash, 0, numChunks)
	offset := 0
	for i := 0; i < numChunks; i++ {
		if offset+chunkHeaderSize > len(region) {
			return nil, nil, xerr.NewFormat("xorb", "chunk run truncated before header")
		}
		hdr := region[offset : offset+chunkHeaderSize]
		if hdr[0] != chunkVersion {
			return nil, nil, xerr.NewFormat("xorb", "unsupported chunk header version")
		}
		compressedSize := getU24LE(hdr[1:4])
		variant := compress.Variant(hdr[4])
		uncompressedSize := getU24LE(hdr[5:8])
		if !variant.Valid() {
			return nil, nil, xerr.NewFormat("xorb", "unknown compression variant in chunk header")
		}
		payloadStart := offset + chunkHeaderSize
		payloadEnd := payloadStart + int(compressedSize)
		if payloadEnd > len(region) {
			return nil, nil, xerr.NewFormat("xorb", "chunk run truncated before payload")
		}
		decompressed, err := compress.Decompress(variant, region[payloadStart:payloadEnd], int(uncompressedSize))
		if err != nil {
			return nil, nil, err
		}
		out = append(out, decompressed...)
		hashes = append(hashes, xhash.Data(decompressed))
		offset = payloadEnd
	}
	return out, hashes, nil
}

// Parse validates and parses a complete serialized xorb.
func Parse(data []byte) (*Object, error) {
	if len(data) < 4 {
		return nil, xerr.NewFormat("xorb", "truncated: shorter than the length trailer")
	}
	infoLen := binary.LittleEndian.Uint32(data[len(data)-4:])
	if uint64(infoLen)+4 > uint64(len(data)) {
		return nil, xerr.NewFormat("xorb", "footer length trailer out of bounds")
	}
	footerStart := len(data) - 4 - int(infoLen)
	footer := data[footerStart : len(data)-4]
	region := data[:footerStart]

	xorbHash, chunkEnds, uncompressedEnds, err := parseFooter(footer)
	if err != nil {
		return nil, err
	}
	n := len(chunkEnds)

	records := make([]chunkRecord, n)
	offset := uint32(0)
	var prevUncompressedEnd uint32
	for i := 0; i < n; i++ {
		if uint64(offset)+chunkHeaderSize > uint64(len(region)) {
			return nil, xerr.NewFormat("xorb", "chunk region truncated before header")
		}
		hdr := region[offset : offset+chunkHeaderSize]
		if hdr[0] != chunkVersion {
			return nil, xerr.NewFormat("xorb", "unsupported chunk header version")
		}
		compressedSize := getU24LE(hdr[1:4])
		variant := compress.Variant(hdr[4])
		uncompressedSize := getU24LE(hdr[5:8])

		if uncompressedSize == 0 || uncompressedSize > MaxChunkSize {
			return nil, xerr.NewConstraint("xorb.chunk_size", "uncompressed_size out of range")
		}
		remaining := uint64(len(region)) - uint64(offset) - chunkHeaderSize
		if compressedSize == 0 || uint64(compressedSize) > remaining || compressedSize > MaxChunkSize {
			return nil, xerr.NewConstraint("xorb.chunk_size", "compressed_size out of range")
		}
		if !variant.Valid() {
			return nil, xerr.NewFormat("xorb", "unknown compression variant in chunk header")
		}

		headerOffset := offset
		offset += chunkHeaderSize + compressedSize

		if offset != chunkEnds[i] {
			return nil, xerr.NewFormat("xorb", "chunk region boundary disagrees with footer boundary section")
		}
		wantUncompressedEnd := prevUncompressedEnd + uncompressedSize
		if wantUncompressedEnd != uncompressedEnds[i] {
			return nil, xerr.NewFormat("xorb", "uncompressed boundary disagrees with footer boundary section")
		}
		prevUncompressedEnd = wantUncompressedEnd

		records[i] = chunkRecord{
			headerOffset:     headerOffset,
			compressedSize:   compressedSize,
			variant:          variant,
			uncompressedSize: uncompressedSize,
		}
	}
	if int(offset) != len(region) {
		return nil, xerr.NewFormat("xorb", "chunk region has trailing bytes past the last chunk")
	}

	if err := attachHashes(footer, records); err != nil {
		return nil, err
	}

	pairs := make([]merkle.Pair, n)
	for i, r := range records {
		pairs[i] = merkle.Pair{Hash: r.hash, Size: uint64(r.uncompressedSize)}
	}
	if got := merkle.Root(pairs); got != xorbHash {
		return nil, xerr.NewIntegrity("xorb", xorbHash.String(), got.String())
	}

	return &Object{region: region, hash: xorbHash, records: records}, nil
}

func parseFooter(footer []byte) (xhash.Hash, []uint32, []uint32, error) {
	if len(footer) < 40+28 {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "footer too short")
	}
	if string(footer[0:7]) != magicMain {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "bad main section magic")
	}
	if footer[7] != mainVersion {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "unsupported main section version")
	}
	var xorbHash xhash.Hash
	copy(xorbHash[:], footer[8:40])

	trailer := footer[len(footer)-28:]
	n := binary.LittleEndian.Uint32(trailer[0:4])
	hashesOffsetFromEnd := binary.LittleEndian.Uint32(trailer[4:8])
	boundariesOffsetFromEnd := binary.LittleEndian.Uint32(trailer[8:12])

	footerEnd := uint32(len(footer))
	if hashesOffsetFromEnd > footerEnd || boundariesOffsetFromEnd > footerEnd {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "trailer offsets out of bounds")
	}
	hashStart := footerEnd - hashesOffsetFromEnd
	boundaryStart := footerEnd - boundariesOffsetFromEnd

	if hashStart+12 > uint32(len(footer)) || string(footer[hashStart:hashStart+7]) != magicHash {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "bad hash section magic")
	}
	if footer[hashStart+7] != hashVersion {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "unsupported hash section version")
	}
	hashN := binary.LittleEndian.Uint32(footer[hashStart+8 : hashStart+12])
	if hashN != n {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "hash section chunk count disagrees with trailer")
	}

	if boundaryStart+12 > uint32(len(footer)) || string(footer[boundaryStart:boundaryStart+7]) != magicBoundary {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "bad boundary section magic")
	}
	if footer[boundaryStart+7] != boundaryVersion {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "unsupported boundary section version")
	}
	boundN := binary.LittleEndian.Uint32(footer[boundaryStart+8 : boundaryStart+12])
	if boundN != n {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "boundary section chunk count disagrees with trailer")
	}

	arraysStart := boundaryStart + 12
	need := uint64(arraysStart) + uint64(n)*8
	if need > uint64(len(footer)) {
		return xhash.Hash{}, nil, nil, xerr.NewFormat("xorb", "boundary arrays truncated")
	}
	chunkEnds := make([]uint32, n)
	uncompressedEnds := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		chunkEnds[i] = binary.LittleEndian.Uint32(footer[arraysStart+i*4 : arraysStart+i*4+4])
	}
	base := arraysStart + n*4
	for i := uint32(0); i < n; i++ {
		uncompressedEnds[i] = binary.LittleEndian.Uint32(footer[base+i*4 : base+i*4+4])
	}

	return xorbHash, chunkEnds, uncompressedEnds, nil
}

func attachHashes(footer []byte, records []chunkRecord) error {
	// Re-derive the hash section start the same way parseFooter did.
	trailer := footer[len(footer)-28:]
	n := binary.LittleEndian.Uint32(trailer[0:4])
	hashesOffsetFromEnd := binary.LittleEndian.Uint32(trailer[4:8])
	footerEnd := uint32(len(footer))
	hashStart := footerEnd - hashesOffsetFromEnd
	base := hashStart + 12
	if uint64(base)+uint64(n)*32 > uint64(len(footer)) {
		return xerr.NewFormat("xorb", "hash array truncated")
	}
	for i := uint32(0); i < n; i++ {
		copy(records[i].hash[:], footer[base+i*32:base+i*32+32])
	}
	return nil
}
