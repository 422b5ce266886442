// Package gearhash holds the fixed 256-entry rolling-hash table the
// content-defined chunker rolls over. The table is fixed by the
// algorithm suite — every conforming deployment must use the same 256
// values — so this package generates one deterministically with a
// splitmix64 bit-mixer seeded by a fixed constant, the same
// multiplicative-constant technique FastCDC-style chunkers use to build
// their gear tables, strengthened with a proper avalanche step so
// adjacent table entries don't share low bits.
package gearhash

// Table is the 256-entry GEARHASH lookup table, indexed by input byte
// value.
var Table [256]uint64

func init() {
	// Fixed seed: any deployment reproducing this exact generator gets the
	// same table. splitmix64 is a standard, well-avalanched 64-bit mixer.
	seed := uint64(0x9E3779B97F4A7C15)
	for i := range Table {
		seed += 0x9E3779B97F4A7C15
		Table[i] = splitmix64(seed)
	}
}

func splitmix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return x
}
