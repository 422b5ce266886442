package shard

import (
	"encoding/binary"
	"sort"

	"github.com/xet-data/xetcas/internal/xerr"
)

const (
	fileLookupEntrySize  = 12
	casLookupEntrySize   = 12
	chunkLookupEntrySize = 16
)

// FileLookupEntry maps a truncated file hash to its index in the file-info
// section.
type FileLookupEntry struct {
	TruncHash uint64
	FileIndex uint32
}

// CasLookupEntry maps a truncated xorb hash to its index in the CAS-info
// section.
type CasLookupEntry struct {
	TruncHash uint64
	CasIndex  uint32
}

// ChunkLookupEntry maps a truncated chunk hash (keyed, if chunk_hash_key
// is non-zero; raw otherwise) to the CAS block and entry that holds it.
type ChunkLookupEntry struct {
	TruncHash  uint64
	CasIndex   uint32
	ChunkIndex uint32
}

func sortFileLookup(e []FileLookupEntry) {
	sort.Slice(e, func(i, j int) bool { return e[i].TruncHash < e[j].TruncHash })
}
func sortCasLookup(e []CasLookupEntry) {
	sort.Slice(e, func(i, j int) bool { return e[i].TruncHash < e[j].TruncHash })
}
func sortChunkLookup(e []ChunkLookupEntry) {
	sort.Slice(e, func(i, j int) bool { return e[i].TruncHash < e[j].TruncHash })
}

func encodeFileLookup(e []FileLookupEntry) []byte {
	buf := make([]byte, len(e)*fileLookupEntrySize)
	for i, r := range e {
		off := i * fileLookupEntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], r.TruncHash)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], r.FileIndex)
	}
	return buf
}

func decodeFileLookup(buf []byte, n uint64) ([]FileLookupEntry, error) {
	if uint64(len(buf)) < n*fileLookupEntrySize {
		return nil, xerr.NewFormat("shard", "truncated file lookup table")
	}
	out := make([]FileLookupEntry, n)
	for i := uint64(0); i < n; i++ {
		off := i * fileLookupEntrySize
		out[i] = FileLookupEntry{
			TruncHash: binary.LittleEndian.Uint64(buf[off : off+8]),
			FileIndex: binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	return out, nil
}

func encodeCasLookup(e []CasLookupEntry) []byte {
	buf := make([]byte, len(e)*casLookupEntrySize)
	for i, r := range e {
		off := i * casLookupEntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], r.TruncHash)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], r.CasIndex)
	}
	return buf
}

func decodeCasLookup(buf []byte, n uint64) ([]CasLookupEntry, error) {
	if uint64(len(buf)) < n*casLookupEntrySize {
		return nil, xerr.NewFormat("shard", "truncated cas lookup table")
	}
	out := make([]CasLookupEntry, n)
	for i := uint64(0); i < n; i++ {
		off := i * casLookupEntrySize
		out[i] = CasLookupEntry{
			TruncHash: binary.LittleEndian.Uint64(buf[off : off+8]),
			CasIndex:  binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	return out, nil
}

func encodeChunkLookup(e []ChunkLookupEntry) []byte {
	buf := make([]byte, len(e)*chunkLookupEntrySize)
	for i, r := range e {
		off := i * chunkLookupEntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], r.TruncHash)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], r.CasIndex)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], r.ChunkIndex)
	}
	return buf
}

func decodeChunkLookup(buf []byte, n uint64) ([]ChunkLookupEntry, error) {
	if uint64(len(buf)) < n*chunkLookupEntrySize {
		return nil, xerr.NewFormat("shard", "truncated chunk lookup table")
	}
	out := make([]ChunkLookupEntry, n)
	for i := uint64(0); i < n; i++ {
		off := i * chunkLookupEntrySize
		out[i] = ChunkLookupEntry{
			TruncHash:  binary.LittleEndian.Uint64(buf[off : off+8]),
			CasIndex:   binary.LittleEndian.Uint32(buf[off+8 : off+12]),
			ChunkIndex: binary.LittleEndian.Uint32(buf[off+12 : off+16]),
		}
	}
	return out, nil
}

// FindChunk binary-searches a sorted ChunkLookupEntry table for truncHash.
// ok is false if no entry matches; when several entries share a prefix
// (legitimate hash-truncation collisions) the first in table order is
// returned.
func FindChunk(table []ChunkLookupEntry, truncHash uint64) (ChunkLookupEntry, bool) {
	i := sort.Search(len(table), func(i int) bool { return table[i].TruncHash >= truncHash })
	if i < len(table) && table[i].TruncHash == truncHash {
		return table[i], true
	}
	return ChunkLookupEntry{}, false
}

// FindFile binary-searches a sorted FileLookupEntry table.
func FindFile(table []FileLookupEntry, truncHash uint64) (FileLookupEntry, bool) {
	i := sort.Search(len(table), func(i int) bool { return table[i].TruncHash >= truncHash })
	if i < len(table) && table[i].TruncHash == truncHash {
		return table[i], true
	}
	return FileLookupEntry{}, false
}

// FindCas binary-searches a sorted CasLookupEntry table.
func FindCas(table []CasLookupEntry, truncHash uint64) (CasLookupEntry, bool) {
	i := sort.Search(len(table), func(i int) bool { return table[i].TruncHash >= truncHash })
	if i < len(table) && table[i].TruncHash == truncHash {
		return table[i], true
	}
	return CasLookupEntry{}, false
}
