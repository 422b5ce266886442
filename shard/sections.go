package shard

import (
	"encoding/binary"

	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/xhash"
)

const (
	flagWithVerification = uint32(1) << 31
	flagWithMetadataExt  = uint32(1) << 30

	flagGlobalDedupEligible = uint32(1) << 31
)

// FileEntry is one FileDataSequenceEntry: a reused-or-new term
// referencing a range of chunks inside one xorb.
type FileEntry struct {
	XorbHash             xhash.Hash
	UnpackedSegmentBytes uint32
	ChunkStart           uint32
	ChunkEnd             uint32 // exclusive
}

// FileBlock is one file's complete metadata record.
type FileBlock struct {
	FileHash            xhash.Hash
	Entries             []FileEntry
	VerificationHashes  []xhash.Hash // len == len(Entries) if present
	HasVerification     bool
	FileSHA256          [32]byte
	HasMetadataExt      bool
}

func encodeFileBlock(fb FileBlock) ([]byte, error) {
	if fb.HasVerification && len(fb.VerificationHashes) != len(fb.Entries) {
		return nil, xerr.NewConstraint("shard.file_block", "verification hash count must match entry count")
	}
	for _, e := range fb.Entries {
		if e.ChunkEnd <= e.ChunkStart {
			return nil, xerr.NewConstraint("shard.term", "chunk_end must exceed chunk_start")
		}
	}
	var flags uint32
	if fb.HasVerification {
		flags |= flagWithVerification
	}
	if fb.HasMetadataExt {
		flags |= flagWithMetadataExt
	}

	buf := make([]byte, 0, recordSize*(1+len(fb.Entries)))
	head := make([]byte, recordSize)
	copy(head[0:32], fb.FileHash[:])
	binary.LittleEndian.PutUint32(head[32:36], flags)
	binary.LittleEndian.PutUint32(head[36:40], uint32(len(fb.Entries)))
	buf = append(buf, head...)

	for _, e := range fb.Entries {
		rec := make([]byte, recordSize)
		copy(rec[0:32], e.XorbHash[:])
		// cas_flags (u32) is reserved zero.
		binary.LittleEndian.PutUint32(rec[36:40], e.UnpackedSegmentBytes)
		binary.LittleEndian.PutUint32(rec[40:44], e.ChunkStart)
		binary.LittleEndian.PutUint32(rec[44:48], e.ChunkEnd)
		buf = append(buf, rec...)
	}

	if fb.HasVerification {
		for _, vh := range fb.VerificationHashes {
			rec := make([]byte, recordSize)
			copy(rec[0:32], vh[:])
			buf = append(buf, rec...)
		}
	}
	if fb.HasMetadataExt {
		rec := make([]byte, recordSize)
		copy(rec[0:32], fb.FileSHA256[:])
		buf = append(buf, rec...)
	}
	return buf, nil
}

// decodeFileBlock decodes one FileBlock starting at buf[0] and returns the
// number of bytes consumed.
func decodeFileBlock(buf []byte) (FileBlock, int, error) {
	if len(buf) < recordSize {
		return FileBlock{}, 0, xerr.NewFormat("shard", "truncated file block header")
	}
	var fb FileBlock
	copy(fb.FileHash[:], buf[0:32])
	flags := binary.LittleEndian.Uint32(buf[32:36])
	numEntries := binary.LittleEndian.Uint32(buf[36:40])
	fb.HasVerification = flags&flagWithVerification != 0
	fb.HasMetadataExt = flags&flagWithMetadataExt != 0

	pos := recordSize
	need := uint64(pos) + uint64(numEntries)*recordSize
	if fb.HasVerification {
		need += uint64(numEntries) * recordSize
	}
	if fb.HasMetadataExt {
		need += recordSize
	}
	if need > uint64(len(buf)) {
		return FileBlock{}, 0, xerr.NewFormat("shard", "truncated file block body")
	}

	fb.Entries = make([]FileEntry, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		rec := buf[pos : pos+recordSize]
		var e FileEntry
		copy(e.XorbHash[:], rec[0:32])
		e.UnpackedSegmentBytes = binary.LittleEndian.Uint32(rec[36:40])
		e.ChunkStart = binary.LittleEndian.Uint32(rec[40:44])
		e.ChunkEnd = binary.LittleEndian.Uint32(rec[44:48])
		if e.ChunkEnd <= e.ChunkStart {
			return FileBlock{}, 0, xerr.NewConstraint("shard.term", "chunk_end must exceed chunk_start")
		}
		fb.Entries[i] = e
		pos += recordSize
	}

	if fb.HasVerification {
		fb.VerificationHashes = make([]xhash.Hash, numEntries)
		for i := uint32(0); i < numEntries; i++ {
			copy(fb.VerificationHashes[i][:], buf[pos:pos+32])
			pos += recordSize
		}
	}
	if fb.HasMetadataExt {
		copy(fb.FileSHA256[:], buf[pos:pos+32])
		pos += recordSize
	}
	return fb, pos, nil
}

// CasEntry is one CASChunkSequenceEntry.
type CasEntry struct {
	ChunkHash            xhash.Hash
	ChunkByteRangeStart  uint32
	UnpackedSegmentBytes uint32
	GlobalDedupEligible  bool
}

// CasBlock describes one xorb's chunk layout.
type CasBlock struct {
	XorbHash       xhash.Hash
	NumBytesInCas  uint32
	NumBytesOnDisk uint32
	Entries        []CasEntry
}

func encodeCasBlock(cb CasBlock) []byte {
	buf := make([]byte, 0, recordSize*(1+len(cb.Entries)))
	head := make([]byte, recordSize)
	copy(head[0:32], cb.XorbHash[:])
	// cas_flags reserved zero.
	binary.LittleEndian.PutUint32(head[36:40], uint32(len(cb.Entries)))
	binary.LittleEndian.PutUint32(head[40:44], cb.NumBytesInCas)
	binary.LittleEndian.PutUint32(head[44:48], cb.NumBytesOnDisk)
	buf = append(buf, head...)

	for _, e := range cb.Entries {
		rec := make([]byte, recordSize)
		copy(rec[0:32], e.ChunkHash[:])
		binary.LittleEndian.PutUint32(rec[32:36], e.ChunkByteRangeStart)
		binary.LittleEndian.PutUint32(rec[36:40], e.UnpackedSegmentBytes)
		var flags uint32
		if e.GlobalDedupEligible {
			flags |= flagGlobalDedupEligible
		}
		binary.LittleEndian.PutUint32(rec[40:44], flags)
		buf = append(buf, rec...)
	}
	return buf
}

func decodeCasBlock(buf []byte) (CasBlock, int, error) {
	if len(buf) < recordSize {
		return CasBlock{}, 0, xerr.NewFormat("shard", "truncated cas block header")
	}
	var cb CasBlock
	copy(cb.XorbHash[:], buf[0:32])
	numEntries := binary.LittleEndian.Uint32(buf[36:40])
	cb.NumBytesInCas = binary.LittleEndian.Uint32(buf[40:44])
	cb.NumBytesOnDisk = binary.LittleEndian.Uint32(buf[44:48])

	pos := recordSize
	need := uint64(pos) + uint64(numEntries)*recordSize
	if need > uint64(len(buf)) {
		return CasBlock{}, 0, xerr.NewFormat("shard", "truncated cas block body")
	}
	cb.Entries = make([]CasEntry, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		rec := buf[pos : pos+recordSize]
		var e CasEntry
		copy(e.ChunkHash[:], rec[0:32])
		e.ChunkByteRangeStart = binary.LittleEndian.Uint32(rec[32:36])
		e.UnpackedSegmentBytes = binary.LittleEndian.Uint32(rec[36:40])
		flags := binary.LittleEndian.Uint32(rec[40:44])
		e.GlobalDedupEligible = flags&flagGlobalDedupEligible != 0
		cb.Entries[i] = e
		pos += recordSize
	}
	return cb, pos, nil
}

func isBookend(buf []byte) bool {
	if len(buf) < BookendSize {
		return false
	}
	for i := 0; i < 32; i++ {
		if buf[i] != 0xFF {
			return false
		}
	}
	for i := 32; i < BookendSize; i++ {
		if buf[i] != 0x00 {
			return false
		}
	}
	return true
}
