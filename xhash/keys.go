package xhash

// The algorithm suite fixes four distinct 32-byte keys binding the keyed
// hash to its role. A conforming deployment must reproduce these bytes
// exactly across every client; this module fixes its own deterministic,
// documented values: each key is a distinguishing byte XORed with the same
// fixed per-position pattern, so keys built from different bytes differ
// in every position and the four can never collide by construction.
var (
	// DataKey keys the per-chunk content hash (chunk_hash).
	DataKey = fillKey(0xA1)
	// InternalNodeKey keys the aggregated hash tree's internal-node hash.
	InternalNodeKey = fillKey(0xB2)
	// VerificationKey keys a term's verification_hash.
	VerificationKey = fillKey(0xC3)
	// ZeroKey keys the file-final hash (wraps the Merkle root).
	ZeroKey = fillKey(0xD4)
)

// ZeroHash is the all-zero 32-byte sentinel: the aggregated hash tree's
// root over an empty input, and the input to ZeroKey for the
// empty file.
var ZeroHash = Hash{}

func fillKey(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b ^ byte(i*0x1B+1)
	}
	return k
}
