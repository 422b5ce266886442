// Package shard implements the shard binary metadata format:
// a fixed header, a file-info section, a CAS-info section, each section
// terminated by a 48-byte bookend, and — in "stored form" only — three
// sorted lookup tables plus a 200-byte footer. "Upload form" omits the
// lookup tables and footer.
//
// The header carries its own format version and magic signature, checked
// before any other field is trusted, and each lookup table supports binary
// search over its sorted truncated hash prefixes.
package shard

import (
	"encoding/binary"

	"github.com/xet-data/xetcas/internal/xerr"
)

const (
	// ApplicationID is the 14-byte ASCII application identifier embedded
	// in every shard header.
	ApplicationID = "HFRepoMetaData"

	// HeaderVersion and FooterVersion evolve independently.
	HeaderVersion = 2
	FooterVersion = 1

	HeaderSize  = 48
	BookendSize = 48
	FooterSize  = 200

	recordSize = 48 // every fixed file-info / CAS-info record is 48 bytes
)

// MagicSequence is the 17-byte fixed sequence that must terminate a
// shard's header magic tag exactly. Like the GEARHASH table and the domain
// hash keys, this is a fixed, documented stand-in value rather than a
// value borrowed from elsewhere.
var MagicSequence = [17]byte{
	0x58, 0x45, 0x54, 0x53, 0x48, 0x41, 0x52, 0x44,
	0x31, 0x00, 0xA5, 0x5A, 0xC3, 0x3C, 0x7E, 0xE7, 0x01,
}

// bookend is the 48-byte section terminator: 32 bytes of 0xFF followed by
// 16 zero bytes.
var bookend = func() [BookendSize]byte {
	var b [BookendSize]byte
	for i := 0; i < 32; i++ {
		b[i] = 0xFF
	}
	return b
}()

// Header is the shard's fixed 48-byte preamble.
type Header struct {
	ApplicationIDMatched bool // informative only, not load-bearing for parse success
	Version              uint64
	FooterSize           uint64 // 0 in upload form
}

func encodeHeader(footerSize uint64) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:14], ApplicationID)
	// buf[14] is already zero.
	copy(buf[15:32], MagicSequence[:])
	binary.LittleEndian.PutUint64(buf[32:40], HeaderVersion)
	binary.LittleEndian.PutUint64(buf[40:48], footerSize)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, xerr.NewFormat("shard", "truncated header")
	}
	var h Header
	if string(buf[15:32]) != string(MagicSequence[:]) {
		return h, xerr.NewFormat("shard", "bad magic sequence")
	}
	h.ApplicationIDMatched = trimNulls(buf[0:14]) == ApplicationID
	h.Version = binary.LittleEndian.Uint64(buf[32:40])
	if h.Version != HeaderVersion {
		return h, xerr.NewFormat("shard", "unsupported header version")
	}
	h.FooterSize = binary.LittleEndian.Uint64(buf[40:48])
	return h, nil
}

func trimNulls(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
