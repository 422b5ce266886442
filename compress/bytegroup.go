package compress

// ByteGroup4 implements the byte-regrouping transform: byte
// i of the input goes to bucket i mod 4; buckets are emitted in order
// 0,1,2,3, each bucket's bytes kept in their original relative order. This
// groups bytes that tend to be similar across a chunk (e.g. repeating
// multi-byte record fields) adjacently, improving the downstream LZ4
// frame's compression ratio.
func ByteGroup4(data []byte) []byte {
	n := len(data)
	out := make([]byte, 0, n)
	for bucket := 0; bucket < 4; bucket++ {
		for i := bucket; i < n; i += 4 {
			out = append(out, data[i])
		}
	}
	return out
}

// ByteUngroup4 inverts ByteGroup4 given the original length n. Bucket
// sizes are ceil(n/4) for the first n%4 buckets and floor(n/4) for the
// rest.
func ByteUngroup4(grouped []byte, n int) []byte {
	if len(grouped) != n {
		panic("compress: ByteUngroup4: grouped length must equal n")
	}
	rem := n % 4
	full := n / 4
	sizes := [4]int{full, full, full, full}
	for b := 0; b < rem; b++ {
		sizes[b]++
	}

	starts := [4]int{}
	off := 0
	for b := 0; b < 4; b++ {
		starts[b] = off
		off += sizes[b]
	}

	out := make([]byte, n)
	pos := [4]int{}
	for i := 0; i < n; i++ {
		bucket := i % 4
		out[i] = grouped[starts[bucket]+pos[bucket]]
		pos[bucket]++
	}
	return out
}
