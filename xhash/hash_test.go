package xhash

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringCodecRoundTrip(t *testing.T) {
	assert := assert.New(t)

	// hash string codec of bytes 00..1f.
	var h Hash
	for i := range h {
		h[i] = byte(i)
	}

	want := "07060504030201000f0e0d0c0b0a090817161514131211101f1e1d1c1b1a1918"
	assert.Equal(want, h.String())
	assert.Len(h.String(), 64)

	back, ok := MaybeParse(h.String())
	assert.True(ok)
	assert.Equal(h, back)
}

func TestParseError(t *testing.T) {
	assert := assert.New(t)

	_, ok := MaybeParse("too-short")
	assert.False(ok)

	_, ok = MaybeParse("zz06050403020100000f0e0d0c0b0a090817161514131211101f1e1d1c1b1a19")
	assert.False(ok)

	assert.Panics(func() { Parse("nope") })
}

func TestStringRoundTripProperty(t *testing.T) {
	assert := assert.New(t)

	for seed := byte(0); seed < 16; seed++ {
		var h Hash
		for i := range h {
			h[i] = seed*7 + byte(i)
		}
		s := h.String()
		assert.Len(s, 64)
		back, ok := MaybeParse(s)
		assert.True(ok)
		assert.Equal(h, back)
	}
}

func TestKeyedDeterministic(t *testing.T) {
	assert := assert.New(t)

	a := Data([]byte("Hello World!"))
	b := Data([]byte("Hello World!"))
	assert.Equal(a, b)
	assert.NotEqual(Hash{}, a)

	c := Data([]byte("Hello World?"))
	assert.NotEqual(a, c)
}

func TestDomainKeysDistinct(t *testing.T) {
	assert := assert.New(t)
	keys := [][32]byte{DataKey, InternalNodeKey, VerificationKey, ZeroKey}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			assert.NotEqual(keys[i], keys[j])
		}
	}
}

func TestZeroFileHash(t *testing.T) {
	assert := assert.New(t)
	// file_hash("") == H_ZERO(32 zero bytes).
	got := Zero(ZeroHash)
	assert.Equal(Zero(Hash{}), got)
}

func TestHashSliceSortAndEquals(t *testing.T) {
	assert := assert.New(t)

	hs := HashSlice{}
	for i := 1; i <= 3; i++ {
		for j := 1; j <= 3; j++ {
			h := Hash{}
			for k := 1; k <= j; k++ {
				h[k-1] = byte(i)
			}
			hs = append(hs, h)
		}
	}

	reversed := make(HashSlice, len(hs))
	copy(reversed, hs)
	sort.Sort(sort.Reverse(reversed))
	assert.False(hs.Equals(reversed))

	sort.Sort(reversed)
	assert.True(hs.Equals(reversed))
}

func TestPrefix(t *testing.T) {
	assert := assert.New(t)
	var h Hash
	for i := range h {
		h[i] = byte(i + 1)
	}
	// low 8 bytes are h[24:32] = 25..32, little-endian.
	assert.Equal(uint64(0x201f1e1d1c1b1a19), h.Prefix())
}
