package shard

import (
	"encoding/binary"

	"github.com/xet-data/xetcas/internal/xerr"
)

// footer is the 200-byte trailer present only in stored form. It carries
// the section layout needed to jump straight to any of the five sections
// plus the three lookup-table entry counts, so a reader never has to walk
// the file sequentially.
type footer struct {
	Version uint64

	FileInfoOffset   uint64
	CasInfoOffset    uint64
	FileLookupOffset uint64
	CasLookupOffset  uint64
	ChunkLookupOffset uint64

	FileLookupCount  uint64
	CasLookupCount   uint64
	ChunkLookupCount uint64

	ChunkHashKey [32]byte // zero if chunk hashes in the lookup table are unkeyed

	ShardCreationTimestamp uint64
	ShardKeyExpiry         uint64

	StoredBytesOnDisk  uint64
	MaterializedBytes  uint64
	StoredBytes        uint64
	FooterOffset       uint64 // offset of this footer itself, for trailing-bytes detection
}

func encodeFooter(f footer) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.Version)
	binary.LittleEndian.PutUint64(buf[8:16], f.FileInfoOffset)
	binary.LittleEndian.PutUint64(buf[16:24], f.CasInfoOffset)
	binary.LittleEndian.PutUint64(buf[24:32], f.FileLookupOffset)
	binary.LittleEndian.PutUint64(buf[32:40], f.CasLookupOffset)
	binary.LittleEndian.PutUint64(buf[40:48], f.ChunkLookupOffset)
	binary.LittleEndian.PutUint64(buf[48:56], f.FileLookupCount)
	binary.LittleEndian.PutUint64(buf[56:64], f.CasLookupCount)
	binary.LittleEndian.PutUint64(buf[64:72], f.ChunkLookupCount)
	copy(buf[72:104], f.ChunkHashKey[:])
	binary.LittleEndian.PutUint64(buf[104:112], f.ShardCreationTimestamp)
	binary.LittleEndian.PutUint64(buf[112:120], f.ShardKeyExpiry)
	// buf[120:168] is 48 bytes reserved, left zero.
	binary.LittleEndian.PutUint64(buf[168:176], f.StoredBytesOnDisk)
	binary.LittleEndian.PutUint64(buf[176:184], f.MaterializedBytes)
	binary.LittleEndian.PutUint64(buf[184:192], f.StoredBytes)
	binary.LittleEndian.PutUint64(buf[192:200], f.FooterOffset)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) < FooterSize {
		return footer{}, xerr.NewFormat("shard", "truncated footer")
	}
	var f footer
	f.Version = binary.LittleEndian.Uint64(buf[0:8])
	if f.Version != FooterVersion {
		return footer{}, xerr.NewFormat("shard", "unsupported footer version")
	}
	f.FileInfoOffset = binary.LittleEndian.Uint64(buf[8:16])
	f.CasInfoOffset = binary.LittleEndian.Uint64(buf[16:24])
	f.FileLookupOffset = binary.LittleEndian.Uint64(buf[24:32])
	f.CasLookupOffset = binary.LittleEndian.Uint64(buf[32:40])
	f.ChunkLookupOffset = binary.LittleEndian.Uint64(buf[40:48])
	f.FileLookupCount = binary.LittleEndian.Uint64(buf[48:56])
	f.CasLookupCount = binary.LittleEndian.Uint64(buf[56:64])
	f.ChunkLookupCount = binary.LittleEndian.Uint64(buf[64:72])
	copy(f.ChunkHashKey[:], buf[72:104])
	f.ShardCreationTimestamp = binary.LittleEndian.Uint64(buf[104:112])
	f.ShardKeyExpiry = binary.LittleEndian.Uint64(buf[112:120])
	f.StoredBytesOnDisk = binary.LittleEndian.Uint64(buf[168:176])
	f.MaterializedBytes = binary.LittleEndian.Uint64(buf[176:184])
	f.StoredBytes = binary.LittleEndian.Uint64(buf[184:192])
	f.FooterOffset = binary.LittleEndian.Uint64(buf[192:200])
	return f, nil
}

// keyExpired reports whether nowUnix is at or past the shard's key expiry.
// A zero ShardKeyExpiry means the key never expires.
func (f footer) keyExpired(nowUnix uint64) bool {
	return f.ShardKeyExpiry != 0 && nowUnix >= f.ShardKeyExpiry
}
