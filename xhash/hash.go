// Package xhash implements the content-addressing keyed-hash primitives:
// a 256-bit keyed hash (BLAKE3-keyed) bound to one of four domain keys, and
// the unusual byte-swapped hex string representation that the aggregated
// hash tree's textual merge input depends on byte-for-byte.
package xhash

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Hash is a 32-byte keyed-hash digest.
type Hash [32]byte

// emptyHash is returned by MaybeParse on failure.
var emptyHash = Hash{}

// Keyed computes the 256-bit keyed hash of data under the given 32-byte
// domain key.
func Keyed(key [32]byte, data []byte) Hash {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// Only possible if key were not exactly 32 bytes, which cannot
		// happen for a [32]byte argument.
		panic(errors.Wrap(err, "xhash: invalid key length"))
	}
	_, _ = h.Write(data)
	var out Hash
	h.Sum(out[:0])
	return out
}

// Data computes chunk_hash(data) = H_DATA(data).
func Data(data []byte) Hash { return Keyed(DataKey, data) }

// InternalNode computes H_INTERNAL(buffer) over the aggregated hash tree's
// textual merge buffer.
func InternalNode(buffer []byte) Hash { return Keyed(InternalNodeKey, buffer) }

// Verification computes H_VER over the raw concatenation of a term's chunk
// hashes.
func Verification(rawConcat []byte) Hash { return Keyed(VerificationKey, rawConcat) }

// Zero computes H_ZERO(root), used to derive file_hash from the Merkle root
//.
func Zero(root Hash) Hash { return Keyed(ZeroKey, root[:]) }

// String renders the hash as its "byte-swapped" form: the 32
// bytes are read as four little-endian 64-bit words, each printed as 16
// lowercase hex digits and concatenated. Equivalently, each 8-byte lane is
// byte-reversed before hex encoding.
func (h Hash) String() string {
	var swapped [32]byte
	for lane := 0; lane < 4; lane++ {
		for i := 0; i < 8; i++ {
			swapped[lane*8+i] = h[lane*8+7-i]
		}
	}
	return hex.EncodeToString(swapped[:])
}

// Parse is the inverse of String; it panics on malformed input. Use this
// only where the caller already knows the string must be well formed,
// e.g. literals in code.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic(errors.Errorf("xhash: invalid hash string %q", s))
	}
	return h
}

// MaybeParse parses the byte-swapped hex string form, returning
// (emptyHash, false) if s is not exactly 64 hex digits. Uppercase digits
// are accepted as well as lowercase.
func MaybeParse(s string) (Hash, bool) {
	if len(s) != 64 {
		return emptyHash, false
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return emptyHash, false
	}
	var h Hash
	for lane := 0; lane < 4; lane++ {
		for i := 0; i < 8; i++ {
			h[lane*8+i] = decoded[lane*8+7-i]
		}
	}
	return h, true
}

// IsEmpty reports whether h is the all-zero sentinel.
func (h Hash) IsEmpty() bool { return h == emptyHash }

// Prefix returns the low 8 bytes of h as a little-endian uint64, the key
// used by the shard lookup tables and prefix-sharded caches.
func (h Hash) Prefix() uint64 {
	return binary.LittleEndian.Uint64(h[24:32])
}

// HashSlice is a sortable, comparable slice of Hash.
type HashSlice []Hash

func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return lessHash(hs[i], hs[j]) }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

func lessHash(a, b Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Equals reports whether hs and other contain the same hashes in the same
// order.
func (hs HashSlice) Equals(other HashSlice) bool {
	if len(hs) != len(other) {
		return false
	}
	for i := range hs {
		if hs[i] != other[i] {
			return false
		}
	}
	return true
}

var _ sort.Interface = HashSlice(nil)
